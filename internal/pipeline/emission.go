package pipeline

import (
	"math"
	"strings"

	"tonkilo/internal"
	"tonkilo/internal/csvio"
	"tonkilo/internal/util"
)

const DefaultCO2Factor = 230.0

const AnomalyThresholdKm = 600.0

type EmissionInput struct {
	Sales     []FileInput
	Geocoded  FileInput
	CO2Factor float64
}

type EmissionResult struct {
	Normal  *csvio.Table
	Anomaly *csvio.Table

	InputRows       int
	NormalRows      int
	AnomalyRows     int
	SupplierPoints  int
	ConsigneePoints int
}

// Conserved reports whether every input row landed in exactly one of
// the two output tables.
func (r *EmissionResult) Conserved() bool {
	return r.NormalRows+r.AnomalyRows == r.InputRows
}

// ComputeEmissions enriches each sales line with both endpoints'
// coordinates, the great-circle distance between them and the CO2
// estimate distance × tons × factor, then splits the lines into a
// normal table (≤600 km) and an anomaly table (>600 km). A missing
// endpoint means distance 0, never a dropped row.
func ComputeEmissions(in EmissionInput, log *RunLog) (*EmissionResult, error) {
	if err := validateSalesFiles(in.Sales); err != nil {
		return nil, err
	}
	if err := requireFile(in.Geocoded, "geocoded code list"); err != nil {
		return nil, err
	}
	factor := in.CO2Factor
	if factor <= 0 {
		factor = DefaultCO2Factor
	}

	log.Logf("--- ファイル読み込み開始 ---")
	log.Logf("--- 販売実績ファイルの読み込み ---")
	salesTables := make([]*csvio.Table, 0, len(in.Sales))
	for _, f := range in.Sales {
		log.Logf("  - 読み込み試行: %s", f.Name)
		t, err := csvio.Decode(f.Data, f.Name, log)
		if err != nil {
			return nil, err
		}
		salesTables = append(salesTables, t)
		log.Logf("    -> 読み込み完了 (%s)", f.Name)
	}
	sales := csvio.Concat("結合後の販売実績データ", salesTables)
	log.Logf("--- 販売実績データの結合完了 (合計: %d 件) ---", len(sales.Rows))

	log.Logf("--- 緯度経度リストの読み込み (%s) ---", in.Geocoded.Name)
	geocoded, err := csvio.Ingest(in.Geocoded.Data, in.Geocoded.Name, []string{internal.ColCodeType, internal.ColCode, internal.ColLat, internal.ColLon}, log)
	if err != nil {
		return nil, err
	}
	log.Logf("    -> 読み込み完了 (%s)", in.Geocoded.Name)

	log.Logf("--- データ準備開始 ---")
	// the schema check runs on the combined table: a column missing
	// from one file but present in another is not an error, its rows
	// just carry empty cells
	if err := sales.Require(internal.ColSupplierCode, internal.ColConsigneeCode, internal.ColQuantity); err != nil {
		return nil, err
	}
	supIdx := sales.Index(internal.ColSupplierCode)
	conIdx := sales.Index(internal.ColConsigneeCode)
	qtyIdx := sales.Index(internal.ColQuantity)
	log.Logf("  - 販売実績データの準備完了")

	supplierPts, consigneePts := buildRoleLookups(geocoded)
	log.Logf("  - 緯度経度リスト準備完了 (仕入先: %d件, 荷受人: %d件)", len(supplierPts), len(consigneePts))
	log.Logf("--- データ準備完了 ---")

	type endpoints struct {
		sup, con     internal.GeoPoint
		supOK, conOK bool
		tons         float64
	}
	rows := make([]endpoints, len(sales.Rows))
	for i, row := range sales.Rows {
		supCode := util.NormalizeCode(row[supIdx])
		conCode := util.NormalizeCode(row[conIdx])
		row[supIdx] = supCode
		row[conIdx] = conCode

		e := endpoints{tons: util.ParseQuantity(row[qtyIdx])}
		e.sup, e.supOK = supplierPts[supCode]
		e.con, e.conOK = consigneePts[conCode]
		rows[i] = e
	}
	log.Logf("--- 緯度経度の紐付け完了 ---")

	log.Logf("--- 距離計算開始 (ハーバーサイン法) ---")
	distances := make([]float64, len(rows))
	for i, e := range rows {
		if e.supOK && e.conOK {
			distances[i] = Haversine(e.sup.Lat, e.sup.Lon, e.con.Lat, e.con.Lon)
		}
	}
	log.Logf("--- 距離計算完了 ---")

	log.Logf("--- CO2排出量計算開始 (係数: %s g/トンキロ) ---", util.FormatFloat(factor))
	emissions := make([]float64, len(rows))
	for i, e := range rows {
		emissions[i] = distances[i] * e.tons * factor
	}
	log.Logf("--- CO2排出量計算完了 ---")

	log.Logf("--- 結果の整理と分割開始 ---")
	for i := range distances {
		distances[i] = round5(distances[i])
		emissions[i] = round5(emissions[i])
	}
	log.Logf("  - 距離とCO2排出量を小数点以下5桁に丸めました。")

	headers := make([]string, 0, len(sales.Headers)+6)
	headers = append(headers, sales.Headers...)
	headers = append(headers, internal.ColSupplierLat, internal.ColSupplierLon, internal.ColConsigneeLat, internal.ColConsigneeLon, internal.ColDistanceKm, internal.ColCO2Grams)

	base := strings.SplitN(in.Sales[0].Name, ".", 2)[0]
	normalName := "co2_result_normal.csv"
	anomalyName := "co2_result_anomaly.csv"
	if base != "" {
		normalName = base + "_" + normalName
		anomalyName = base + "_" + anomalyName
	}
	normal := &csvio.Table{Name: normalName, Headers: headers, Rows: make([][]string, 0, len(sales.Rows))}
	anomaly := &csvio.Table{Name: anomalyName, Headers: headers}

	for i, row := range sales.Rows {
		e := rows[i]
		out := make([]string, 0, len(headers))
		out = append(out, row...)
		out = append(out,
			coordCell(e.sup.Lat, e.supOK), coordCell(e.sup.Lon, e.supOK),
			coordCell(e.con.Lat, e.conOK), coordCell(e.con.Lon, e.conOK),
			util.FormatFloat(distances[i]), util.FormatFloat(emissions[i]))
		if distances[i] <= AnomalyThresholdKm {
			normal.Rows = append(normal.Rows, out)
		} else {
			anomaly.Rows = append(anomaly.Rows, out)
		}
	}
	log.Logf("  - 結果を分割しました (正常: %d件, 異常値疑い: %d件)。", len(normal.Rows), len(anomaly.Rows))

	res := &EmissionResult{
		Normal:          normal,
		Anomaly:         anomaly,
		InputRows:       len(sales.Rows),
		NormalRows:      len(normal.Rows),
		AnomalyRows:     len(anomaly.Rows),
		SupplierPoints:  len(supplierPts),
		ConsigneePoints: len(consigneePts),
	}
	if !res.Conserved() {
		log.Logf("  - 警告: 入力件数と出力合計件数が一致しません (入力 %d, 出力 %d)。", res.InputRows, res.NormalRows+res.AnomalyRows)
	}
	return res, nil
}

// buildRoleLookups splits the geocoded list into one coordinate lookup
// per role. Rows with non-numeric coordinates are dropped; the first
// occurrence of a code wins.
func buildRoleLookups(t *csvio.Table) (supplier, consignee map[string]internal.GeoPoint) {
	typeIdx := t.Index(internal.ColCodeType)
	codeIdx := t.Index(internal.ColCode)
	latIdx := t.Index(internal.ColLat)
	lonIdx := t.Index(internal.ColLon)

	supplier = make(map[string]internal.GeoPoint)
	consignee = make(map[string]internal.GeoPoint)
	for _, row := range t.Rows {
		lat, okLat := util.ParseCoord(row[latIdx])
		lon, okLon := util.ParseCoord(row[lonIdx])
		if !okLat || !okLon {
			continue
		}
		code := util.NormalizeCode(row[codeIdx])
		pt := internal.GeoPoint{Lat: lat, Lon: lon}
		switch internal.CodeType(row[typeIdx]) {
		case internal.CodeTypeSupplier:
			if _, ok := supplier[code]; !ok {
				supplier[code] = pt
			}
		case internal.CodeTypeConsignee:
			if _, ok := consignee[code]; !ok {
				consignee[code] = pt
			}
		}
	}
	return supplier, consignee
}

func coordCell(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return util.FormatFloat(v)
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
