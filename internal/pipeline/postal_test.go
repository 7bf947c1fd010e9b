package pipeline

import (
	"errors"
	"strings"
	"testing"

	"tonkilo/internal"
	"tonkilo/internal/csvio"
)

func csvFile(name, content string) FileInput {
	return FileInput{Name: name, Data: []byte(content)}
}

func TestLinkPostal(t *testing.T) {
	in := PostalLinkInput{
		Sales: []FileInput{
			csvFile("sales1.csv", "仕入先コード,荷受人コード\nS01,C01\nS02,C02\n"),
		},
		SupplierMaster:  csvFile("supplier.csv", "仕入先コード,仕入先郵便番号\nS01,1000000\n"),
		ConsigneeMaster: csvFile("consignee.csv", "荷受人コード,郵便番号\nC01,260-0013\n"),
	}

	log := NewRunLog()
	res, err := LinkPostal(in, log)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Matched) != 2 {
		t.Fatalf("matched: %+v", res.Matched)
	}
	if m := res.Matched[0]; m.Type != internal.CodeTypeSupplier || m.Code != "S01" || m.PostalCode != "1000000" {
		t.Fatalf("matched[0]: %+v", m)
	}
	if m := res.Matched[1]; m.Type != internal.CodeTypeConsignee || m.Code != "C01" || m.PostalCode != "260-0013" {
		t.Fatalf("matched[1]: %+v", m)
	}

	if len(res.Unmatched) != 2 {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
	if u := res.Unmatched[0]; u.Type != internal.CodeTypeSupplier || u.Code != "S02" {
		t.Fatalf("unmatched[0]: %+v", u)
	}
	if u := res.Unmatched[1]; u.Type != internal.CodeTypeConsignee || u.Code != "C02" {
		t.Fatalf("unmatched[1]: %+v", u)
	}

	transcript := log.Transcript()
	for _, want := range []string{"成功リスト件数: 2", "失敗リスト件数: 2", "重複除去後のユニークコード数: 4"} {
		if !strings.Contains(transcript, want) {
			t.Fatalf("transcript missing %q:\n%s", want, transcript)
		}
	}
}

func TestLinkPostalMasterLastWins(t *testing.T) {
	in := PostalLinkInput{
		Sales: []FileInput{
			csvFile("sales.csv", "仕入先コード,荷受人コード\nA01,B01\n"),
		},
		SupplierMaster:  csvFile("supplier.csv", "仕入先コード,仕入先郵便番号\nA01,1110000\nA01,2220000\n"),
		ConsigneeMaster: csvFile("consignee.csv", "荷受人コード,郵便番号\nB01,3330000\nB01,4440000\n"),
	}

	res, err := LinkPostal(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matched) != 2 {
		t.Fatalf("matched: %+v", res.Matched)
	}
	if res.Matched[0].PostalCode != "2220000" {
		t.Fatalf("supplier postal: %q", res.Matched[0].PostalCode)
	}
	if res.Matched[1].PostalCode != "4440000" {
		t.Fatalf("consignee postal: %q", res.Matched[1].PostalCode)
	}
}

func TestLinkPostalHyphenAsymmetry(t *testing.T) {
	in := PostalLinkInput{
		Sales: []FileInput{
			csvFile("sales.csv", "仕入先コード,荷受人コード\nS-01,C-99\n"),
		},
		SupplierMaster:  csvFile("supplier.csv", "仕入先コード,仕入先郵便番号\nS01,1000000\n"),
		ConsigneeMaster: csvFile("consignee.csv", "荷受人コード,郵便番号\nC99,2000000\n"),
	}

	res, err := LinkPostal(in, nil)
	if err != nil {
		t.Fatal(err)
	}

	// supplier keys match with hyphens stripped, and the output keeps
	// the original form of the code
	if len(res.Matched) != 1 {
		t.Fatalf("matched: %+v", res.Matched)
	}
	if m := res.Matched[0]; m.Type != internal.CodeTypeSupplier || m.Code != "S-01" || m.PostalCode != "1000000" {
		t.Fatalf("matched[0]: %+v", m)
	}

	// consignee keys are never hyphen-stripped
	if len(res.Unmatched) != 1 || res.Unmatched[0].Code != "C-99" {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
}

func TestLinkPostalConservation(t *testing.T) {
	in := PostalLinkInput{
		Sales: []FileInput{
			csvFile("sales1.csv", "仕入先コード,荷受人コード\nS01,C01\nS01,C01\n,C02\n"),
			csvFile("sales2.csv", "仕入先コード,荷受人コード\nS02,   \n"),
		},
		SupplierMaster:  csvFile("supplier.csv", "仕入先コード,仕入先郵便番号\nS01,1000000\n"),
		ConsigneeMaster: csvFile("consignee.csv", "荷受人コード,郵便番号\nC01,2000000\n"),
	}

	res, err := LinkPostal(in, nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.TotalCodes != 8 {
		t.Fatalf("total codes: %d", res.TotalCodes)
	}
	if res.UniqueCodes != 4 {
		t.Fatalf("unique codes: %d", res.UniqueCodes)
	}
	if got := len(res.Matched) + len(res.Unmatched); got != res.UniqueCodes {
		t.Fatalf("partition not conserved: %d matched + %d unmatched != %d unique",
			len(res.Matched), len(res.Unmatched), res.UniqueCodes)
	}
}

func TestLinkPostalValidation(t *testing.T) {
	master := csvFile("m.csv", "仕入先コード,仕入先郵便番号\n")
	consignee := csvFile("c.csv", "荷受人コード,郵便番号\n")

	_, err := LinkPostal(PostalLinkInput{SupplierMaster: master, ConsigneeMaster: consignee}, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	many := make([]FileInput, MaxSalesFiles+1)
	for i := range many {
		many[i] = csvFile("s.csv", "仕入先コード,荷受人コード\n")
	}
	_, err = LinkPostal(PostalLinkInput{Sales: many, SupplierMaster: master, ConsigneeMaster: consignee}, nil)
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	one := []FileInput{csvFile("s.csv", "仕入先コード,荷受人コード\n")}
	_, err = LinkPostal(PostalLinkInput{Sales: one, ConsigneeMaster: consignee}, nil)
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLinkPostalMissingColumn(t *testing.T) {
	in := PostalLinkInput{
		Sales: []FileInput{
			csvFile("sales.csv", "仕入先コード\nS01\n"),
		},
		SupplierMaster:  csvFile("supplier.csv", "仕入先コード,仕入先郵便番号\n"),
		ConsigneeMaster: csvFile("consignee.csv", "荷受人コード,郵便番号\n"),
	}

	_, err := LinkPostal(in, nil)
	var se *csvio.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(se.Missing) != 1 || se.Missing[0] != "荷受人コード" {
		t.Fatalf("missing: %+v", se.Missing)
	}
}

func TestLinkPostalMasterDropsIncompleteRows(t *testing.T) {
	in := PostalLinkInput{
		Sales: []FileInput{
			csvFile("sales.csv", "仕入先コード,荷受人コード\nS01,C01\n"),
		},
		SupplierMaster:  csvFile("supplier.csv", "仕入先コード,仕入先郵便番号\nS01,\n,9990000\n"),
		ConsigneeMaster: csvFile("consignee.csv", "荷受人コード,郵便番号\nC01,2000000\n"),
	}

	res, err := LinkPostal(in, nil)
	if err != nil {
		t.Fatal(err)
	}

	// the S01 master row has no postal code, so the supplier code must
	// end up unmatched
	if len(res.Unmatched) != 1 || res.Unmatched[0].Code != "S01" {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
	if len(res.Matched) != 1 || res.Matched[0].Code != "C01" {
		t.Fatalf("matched: %+v", res.Matched)
	}
}
