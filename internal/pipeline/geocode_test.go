package pipeline

import (
	"strings"
	"testing"

	"tonkilo/internal"
)

func TestLinkGeoAveraging(t *testing.T) {
	in := GeoLinkInput{
		CodeList: csvFile("result_success.csv", "コード種別,コード,郵便番号\n仕入先,S01,100-0000\n"),
		Geocode:  csvFile("geocode.csv", "postal_cd,longitude,latitude\n1000000,20.0,10.0\n100-0000,22.0,12.0\n"),
	}

	res, err := LinkGeo(in, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Matched) != 1 {
		t.Fatalf("matched: %+v", res.Matched)
	}
	m := res.Matched[0]
	if m.Point.Lat != 11 || m.Point.Lon != 21 {
		t.Fatalf("point: %+v", m.Point)
	}
	if m.PostalCode != "100-0000" {
		t.Fatalf("postal must keep its original form: %q", m.PostalCode)
	}
	if res.UniquePostals != 1 || res.ValidGeocodeRows != 2 {
		t.Fatalf("counters: %+v", res)
	}

	tab := res.MatchedTable()
	if tab.Name != "result_geocoded_success.csv" {
		t.Fatalf("name: %q", tab.Name)
	}
	if row := tab.Rows[0]; row[3] != "11" || row[4] != "21" {
		t.Fatalf("row: %+v", row)
	}
}

func TestLinkGeoInvalidPostalDropped(t *testing.T) {
	in := GeoLinkInput{
		CodeList: csvFile("codes.csv", "コード種別,コード,郵便番号\n仕入先,S01,12345\n仕入先,S02,1000000\n荷受人,C01,ABCDEFG\n"),
		Geocode:  csvFile("geocode.csv", "postal_cd,longitude,latitude\n1000000,139.0,35.0\n"),
	}

	log := NewRunLog()
	res, err := LinkGeo(in, log)
	if err != nil {
		t.Fatal(err)
	}

	// rows with invalid postal codes appear in neither output
	if res.CodeRows != 3 || res.ValidCodeRows != 1 {
		t.Fatalf("counters: %+v", res)
	}
	if len(res.Matched)+len(res.Unmatched) != 1 {
		t.Fatalf("partition: %d matched, %d unmatched", len(res.Matched), len(res.Unmatched))
	}
	if !strings.Contains(log.Transcript(), "元 3 件 -> 有効な郵便番号 1 件") {
		t.Fatalf("transcript:\n%s", log.Transcript())
	}
}

func TestLinkGeoUnmatched(t *testing.T) {
	in := GeoLinkInput{
		CodeList: csvFile("codes.csv", "コード種別,コード,郵便番号\n荷受人,C01,9999999\n"),
		Geocode:  csvFile("geocode.csv", "postal_cd,longitude,latitude\n1000000,139.0,35.0\n"),
	}

	res, err := LinkGeo(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unmatched) != 1 {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
	u := res.Unmatched[0]
	if u.Reason != internal.GeocodeFailureReason {
		t.Fatalf("reason: %q", u.Reason)
	}

	tab := res.UnmatchedTable()
	if tab.Name != "result_geocoded_failed.csv" {
		t.Fatalf("name: %q", tab.Name)
	}
	if len(tab.Headers) != 4 || tab.Headers[3] != "失敗理由" {
		t.Fatalf("headers: %+v", tab.Headers)
	}
}

func TestLinkGeoEmptyReference(t *testing.T) {
	in := GeoLinkInput{
		CodeList: csvFile("codes.csv", "コード種別,コード,郵便番号\n仕入先,S01,1000000\n"),
		Geocode:  csvFile("geocode.csv", "postal_cd,longitude,latitude\n"),
	}

	log := NewRunLog()
	res, err := LinkGeo(in, log)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matched) != 0 || len(res.Unmatched) != 1 {
		t.Fatalf("partition: %+v", res)
	}
	if !strings.Contains(log.Transcript(), "平均化スキップ") {
		t.Fatalf("transcript:\n%s", log.Transcript())
	}
}

func TestLinkGeoDropsBadReferenceRows(t *testing.T) {
	in := GeoLinkInput{
		CodeList: csvFile("codes.csv", "コード種別,コード,郵便番号\n仕入先,S01,1000000\n仕入先,S02,2000000\n"),
		Geocode: csvFile("geocode.csv", "postal_cd,longitude,latitude\n"+
			"1000000,abc,35.0\n"+ // non-numeric longitude
			"1000000,139.0,\n"+ // missing latitude
			"123,139.0,35.0\n"+ // invalid postal key
			"2000000,140.0,36.0\n"),
	}

	res, err := LinkGeo(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.GeocodeRows != 4 || res.ValidGeocodeRows != 1 {
		t.Fatalf("counters: %+v", res)
	}
	if len(res.Matched) != 1 || res.Matched[0].Code != "S02" {
		t.Fatalf("matched: %+v", res.Matched)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Code != "S01" {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
}
