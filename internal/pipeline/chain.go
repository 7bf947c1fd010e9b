package pipeline

import (
	"tonkilo/internal/csvio"
)

type ChainInput struct {
	Sales           []FileInput
	SupplierMaster  FileInput
	ConsigneeMaster FileInput
	Geocode         FileInput
	CO2Factor       float64
}

type ChainResult struct {
	Postal   *PostalLinkResult
	Geo      *GeoLinkResult
	Emission *EmissionResult
}

// RunChain executes all three stages against one file set. Each stage
// receives the previous stage's matched table as serialized CSV bytes,
// the same contract operators use when running the stages one by one.
func RunChain(in ChainInput, log *RunLog) (*ChainResult, error) {
	postal, err := LinkPostal(PostalLinkInput{
		Sales:           in.Sales,
		SupplierMaster:  in.SupplierMaster,
		ConsigneeMaster: in.ConsigneeMaster,
	}, log)
	if err != nil {
		return nil, err
	}

	codeList := postal.MatchedTable()
	codeListCSV, err := csvio.EncodeCSV(codeList)
	if err != nil {
		return nil, err
	}

	geo, err := LinkGeo(GeoLinkInput{
		CodeList: FileInput{Name: codeList.Name, Data: codeListCSV},
		Geocode:  in.Geocode,
	}, log)
	if err != nil {
		return nil, err
	}

	geocodedList := geo.MatchedTable()
	geocodedCSV, err := csvio.EncodeCSV(geocodedList)
	if err != nil {
		return nil, err
	}

	emission, err := ComputeEmissions(EmissionInput{
		Sales:     in.Sales,
		Geocoded:  FileInput{Name: geocodedList.Name, Data: geocodedCSV},
		CO2Factor: in.CO2Factor,
	}, log)
	if err != nil {
		return nil, err
	}

	return &ChainResult{Postal: postal, Geo: geo, Emission: emission}, nil
}

// Tables lists every output table of a full run, stage by stage.
func (r *ChainResult) Tables() []*csvio.Table {
	return []*csvio.Table{
		r.Postal.MatchedTable(),
		r.Postal.UnmatchedTable(),
		r.Geo.MatchedTable(),
		r.Geo.UnmatchedTable(),
		r.Emission.Normal,
		r.Emission.Anomaly,
	}
}

// Counts summarizes the chain for run records and cycle summaries.
func (r *ChainResult) Counts() map[string]int {
	return map[string]int{
		"codes":      r.Postal.UniqueCodes,
		"matched":    len(r.Postal.Matched),
		"unmatched":  len(r.Postal.Unmatched),
		"geocoded":   len(r.Geo.Matched),
		"geo_failed": len(r.Geo.Unmatched),
		"rows":       r.Emission.InputRows,
		"normal":     r.Emission.NormalRows,
		"anomaly":    r.Emission.AnomalyRows,
	}
}
