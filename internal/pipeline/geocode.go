package pipeline

import (
	"strings"

	"tonkilo/internal"
	"tonkilo/internal/csvio"
	"tonkilo/internal/util"
)

type GeoLinkInput struct {
	CodeList FileInput
	Geocode  FileInput
}

type GeoLinkResult struct {
	Matched   []internal.GeocodedCode
	Unmatched []internal.GeocodeFailure

	CodeRows         int
	ValidCodeRows    int
	GeocodeRows      int
	ValidGeocodeRows int
	UniquePostals    int
}

// LinkGeo resolves the postal codes of a linked code list to averaged
// coordinates from a geocode reference. Rows whose postal code is not a
// valid 7-digit key are dropped up front and appear in neither result
// list; reference rows sharing a key contribute equally to its mean.
func LinkGeo(in GeoLinkInput, log *RunLog) (*GeoLinkResult, error) {
	if err := requireFile(in.CodeList, "code list"); err != nil {
		return nil, err
	}
	if err := requireFile(in.Geocode, "geocode reference"); err != nil {
		return nil, err
	}

	log.Logf("--- ファイル読み込み開始 ---")
	log.Logf("  - 読み込み試行: %s", in.CodeList.Name)
	codeList, err := csvio.Ingest(in.CodeList.Data, in.CodeList.Name, []string{internal.ColCodeType, internal.ColCode, internal.ColPostal}, log)
	if err != nil {
		return nil, err
	}
	log.Logf("    -> 読み込み完了 (%s)", in.CodeList.Name)

	log.Logf("  - 読み込み試行: %s", in.Geocode.Name)
	geocode, err := csvio.Ingest(in.Geocode.Data, in.Geocode.Name, []string{internal.ColGeoPostal, internal.ColGeoLon, internal.ColGeoLat}, log)
	if err != nil {
		return nil, err
	}
	log.Logf("    -> 読み込み完了 (%s)", in.Geocode.Name)
	log.Logf("--- ファイル読み込み完了 ---")

	log.Logf("--- データ準備開始 ---")
	type listedCode struct {
		codeType internal.CodeType
		code     string
		postal   string
		key      string
	}
	typeIdx := codeList.Index(internal.ColCodeType)
	codeIdx := codeList.Index(internal.ColCode)
	postalIdx := codeList.Index(internal.ColPostal)
	entries := make([]listedCode, 0, len(codeList.Rows))
	for _, row := range codeList.Rows {
		postal := strings.TrimSpace(row[postalIdx])
		key, ok := util.NormalizePostal(postal)
		if !ok {
			continue
		}
		entries = append(entries, listedCode{
			codeType: internal.CodeType(row[typeIdx]),
			code:     row[codeIdx],
			postal:   postal,
			key:      key,
		})
	}
	log.Logf("  - コードリスト: 元 %d 件 -> 有効な郵便番号 %d 件", len(codeList.Rows), len(entries))

	points, validGeocodeRows := averageByPostal(geocode)
	log.Logf("  - Geocodeデータ: 元 %d 件 -> 有効なデータ %d 件", len(geocode.Rows), validGeocodeRows)
	if len(points) > 0 {
		log.Logf("  - 緯度経度の平均化完了 (ユニーク郵便番号 %d 件)", len(points))
	} else {
		log.Logf("  - Geocodeデータが空のため、平均化スキップ")
	}
	log.Logf("--- データ準備完了 ---")

	matched := make([]internal.GeocodedCode, 0, len(entries))
	unmatched := make([]internal.GeocodeFailure, 0)
	for _, e := range entries {
		pt, ok := points[e.key]
		if ok {
			matched = append(matched, internal.GeocodedCode{Type: e.codeType, Code: e.code, PostalCode: e.postal, Point: pt})
		} else {
			unmatched = append(unmatched, internal.GeocodeFailure{Type: e.codeType, Code: e.code, PostalCode: e.postal, Reason: internal.GeocodeFailureReason})
		}
	}
	log.Logf("--- データの結合完了 ---")

	log.Logf("--- 結果の分割開始 ---")
	log.Logf("  - 成功リスト件数: %d", len(matched))
	log.Logf("  - 失敗リスト件数: %d", len(unmatched))
	log.Logf("--- 結果の分割完了 ---")

	return &GeoLinkResult{
		Matched:          matched,
		Unmatched:        unmatched,
		CodeRows:         len(codeList.Rows),
		ValidCodeRows:    len(entries),
		GeocodeRows:      len(geocode.Rows),
		ValidGeocodeRows: validGeocodeRows,
		UniquePostals:    len(points),
	}, nil
}

// averageByPostal keeps reference rows with numeric coordinates and a
// valid postal key, then means lat and lon per key.
func averageByPostal(t *csvio.Table) (map[string]internal.GeoPoint, int) {
	postalIdx := t.Index(internal.ColGeoPostal)
	lonIdx := t.Index(internal.ColGeoLon)
	latIdx := t.Index(internal.ColGeoLat)

	type acc struct {
		lat, lon float64
		n        int
	}
	sums := make(map[string]*acc)
	valid := 0
	for _, row := range t.Rows {
		lat, okLat := util.ParseCoord(row[latIdx])
		lon, okLon := util.ParseCoord(row[lonIdx])
		if !okLat || !okLon {
			continue
		}
		key, ok := util.NormalizePostal(row[postalIdx])
		if !ok {
			continue
		}
		valid++
		s := sums[key]
		if s == nil {
			s = &acc{}
			sums[key] = s
		}
		s.lat += lat
		s.lon += lon
		s.n++
	}

	points := make(map[string]internal.GeoPoint, len(sums))
	for key, s := range sums {
		points[key] = internal.GeoPoint{Lat: s.lat / float64(s.n), Lon: s.lon / float64(s.n)}
	}
	return points, valid
}

func (r *GeoLinkResult) MatchedTable() *csvio.Table {
	t := &csvio.Table{
		Name:    "result_geocoded_success.csv",
		Headers: []string{internal.ColCodeType, internal.ColCode, internal.ColPostal, internal.ColLat, internal.ColLon},
		Rows:    make([][]string, 0, len(r.Matched)),
	}
	for _, m := range r.Matched {
		t.Rows = append(t.Rows, []string{string(m.Type), m.Code, m.PostalCode, util.FormatFloat(m.Point.Lat), util.FormatFloat(m.Point.Lon)})
	}
	return t
}

func (r *GeoLinkResult) UnmatchedTable() *csvio.Table {
	t := &csvio.Table{
		Name:    "result_geocoded_failed.csv",
		Headers: []string{internal.ColCodeType, internal.ColCode, internal.ColPostal, internal.ColFailReason},
		Rows:    make([][]string, 0, len(r.Unmatched)),
	}
	for _, u := range r.Unmatched {
		t.Rows = append(t.Rows, []string{string(u.Type), u.Code, u.PostalCode, u.Reason})
	}
	return t
}
