package pipeline

import (
	"tonkilo/internal"
	"tonkilo/internal/csvio"
	"tonkilo/internal/util"
)

type PostalLinkInput struct {
	Sales           []FileInput
	SupplierMaster  FileInput
	ConsigneeMaster FileInput
}

type PostalLinkResult struct {
	Matched   []internal.LinkedCode
	Unmatched []internal.CodeRecord

	TotalCodes    int
	UniqueCodes   int
	SupplierRows  int
	ConsigneeRows int
}

// LinkPostal resolves every supplier and consignee code found in the
// sales extracts to a postal code via the two master tables. Codes are
// normalized and deduplicated first; each surviving (type, code) pair
// lands in exactly one of the two result lists.
func LinkPostal(in PostalLinkInput, log *RunLog) (*PostalLinkResult, error) {
	if err := validateSalesFiles(in.Sales); err != nil {
		return nil, err
	}
	if err := requireFile(in.SupplierMaster, "supplier master"); err != nil {
		return nil, err
	}
	if err := requireFile(in.ConsigneeMaster, "consignee master"); err != nil {
		return nil, err
	}

	log.Logf("**ファイル読み込みログ:**")
	log.Logf("--- 販売実績ファイルの読み込み ---")
	salesTables := make([]*csvio.Table, 0, len(in.Sales))
	for _, f := range in.Sales {
		log.Logf("  - 読み込み試行: %s", f.Name)
		t, err := csvio.Ingest(f.Data, f.Name, []string{internal.ColSupplierCode, internal.ColConsigneeCode}, log)
		if err != nil {
			return nil, err
		}
		salesTables = append(salesTables, t)
		log.Logf("    -> 読み込み完了 (%s)", f.Name)
	}
	log.Logf("--- 販売実績データの結合完了 ---")

	log.Logf("--- 仕入先マスタの読み込み ---")
	log.Logf("  - 読み込み試行: %s", in.SupplierMaster.Name)
	supplierMaster, err := csvio.Ingest(in.SupplierMaster.Data, in.SupplierMaster.Name, []string{internal.ColSupplierCode, internal.ColSupplierPostal}, log)
	if err != nil {
		return nil, err
	}
	log.Logf("    -> 読み込み完了 (%s)", in.SupplierMaster.Name)

	log.Logf("--- 荷受人マスタの読み込み ---")
	log.Logf("  - 読み込み試行: %s", in.ConsigneeMaster.Name)
	consigneeMaster, err := csvio.Ingest(in.ConsigneeMaster.Data, in.ConsigneeMaster.Name, []string{internal.ColConsigneeCode, internal.ColPostal}, log)
	if err != nil {
		return nil, err
	}
	log.Logf("    -> 読み込み完了 (%s)", in.ConsigneeMaster.Name)
	log.Logf("--- 全ファイル読み込み完了 ---")

	log.Logf("--- コードの抽出と整形開始 ---")
	codes := collectCodes(salesTables)
	log.Logf("  - 結合後の総コード数 (空含む): %d", len(codes))

	nonEmpty := make([]internal.CodeRecord, 0, len(codes))
	for _, c := range codes {
		if c.Code == "" {
			continue
		}
		nonEmpty = append(nonEmpty, c)
	}
	log.Logf("  - 空コード除去後の数: %d", len(nonEmpty))

	trimmed := make([]internal.CodeRecord, 0, len(nonEmpty))
	for _, c := range nonEmpty {
		code := util.NormalizeCode(c.Code)
		if code == "" {
			continue
		}
		trimmed = append(trimmed, internal.CodeRecord{Type: c.Type, Code: code})
	}
	log.Logf("  - 空白除去後の数: %d", len(trimmed))

	unique := dedupCodes(trimmed)
	log.Logf("  - 重複除去後のユニークコード数: %d", len(unique))
	log.Logf("--- コード抽出と整形完了 ---")

	log.Logf("--- マスターデータの準備開始 ---")
	supplierPostal := prepareMaster(supplierMaster, internal.ColSupplierCode, internal.ColSupplierPostal, true)
	log.Logf("  - 準備後の仕入先マスタ件数: %d", len(supplierPostal))
	consigneePostal := prepareMaster(consigneeMaster, internal.ColConsigneeCode, internal.ColPostal, false)
	log.Logf("  - 準備後の荷受人マスタ件数: %d", len(consigneePostal))
	log.Logf("--- マスターデータの準備完了 ---")

	matched := make([]internal.LinkedCode, 0, len(unique))
	unmatched := make([]internal.CodeRecord, 0)
	for _, c := range unique {
		var postal string
		switch c.Type {
		case internal.CodeTypeSupplier:
			// the supplier join key is hyphen-stripped on both sides;
			// a code that strips to nothing can never match
			if key := util.StripHyphens(c.Code); key != "" {
				postal = supplierPostal[key]
			}
		case internal.CodeTypeConsignee:
			postal = consigneePostal[c.Code]
		}
		if postal != "" {
			matched = append(matched, internal.LinkedCode{Type: c.Type, Code: c.Code, PostalCode: postal})
		} else {
			unmatched = append(unmatched, c)
		}
	}
	log.Logf("--- 郵便番号の紐付け完了 ---")

	log.Logf("  - 成功リスト件数: %d", len(matched))
	log.Logf("  - 失敗リスト件数: %d", len(unmatched))
	log.Logf("--- 結果の分割完了 ---")

	return &PostalLinkResult{
		Matched:       matched,
		Unmatched:     unmatched,
		TotalCodes:    len(codes),
		UniqueCodes:   len(unique),
		SupplierRows:  len(supplierPostal),
		ConsigneeRows: len(consigneePostal),
	}, nil
}

// collectCodes unions the supplier column of every sales table, then the
// consignee column, preserving file order within each block. Cells pass
// through raw; filtering happens in LinkPostal where each step's count
// is reported.
func collectCodes(tables []*csvio.Table) []internal.CodeRecord {
	out := make([]internal.CodeRecord, 0)
	for _, t := range tables {
		idx := t.Index(internal.ColSupplierCode)
		for _, row := range t.Rows {
			out = append(out, internal.CodeRecord{Type: internal.CodeTypeSupplier, Code: row[idx]})
		}
	}
	for _, t := range tables {
		idx := t.Index(internal.ColConsigneeCode)
		for _, row := range t.Rows {
			out = append(out, internal.CodeRecord{Type: internal.CodeTypeConsignee, Code: row[idx]})
		}
	}
	return out
}

func dedupCodes(codes []internal.CodeRecord) []internal.CodeRecord {
	seen := map[internal.CodeRecord]struct{}{}
	out := make([]internal.CodeRecord, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// prepareMaster maps normalized master codes to their raw postal cell.
// Rows missing either cell are dropped; later rows overwrite earlier
// ones, so the last occurrence of a code wins.
func prepareMaster(t *csvio.Table, codeCol, postalCol string, stripHyphens bool) map[string]string {
	codeIdx := t.Index(codeCol)
	postalIdx := t.Index(postalCol)
	out := make(map[string]string, len(t.Rows))
	for _, row := range t.Rows {
		rawCode := row[codeIdx]
		rawPostal := row[postalIdx]
		if rawCode == "" || rawPostal == "" {
			continue
		}
		code := util.NormalizeCode(rawCode)
		if stripHyphens {
			code = util.StripHyphens(code)
		}
		out[code] = rawPostal
	}
	return out
}

func (r *PostalLinkResult) MatchedTable() *csvio.Table {
	t := &csvio.Table{
		Name:    "result_success.csv",
		Headers: []string{internal.ColCodeType, internal.ColCode, internal.ColPostal},
		Rows:    make([][]string, 0, len(r.Matched)),
	}
	for _, m := range r.Matched {
		t.Rows = append(t.Rows, []string{string(m.Type), m.Code, m.PostalCode})
	}
	return t
}

func (r *PostalLinkResult) UnmatchedTable() *csvio.Table {
	t := &csvio.Table{
		Name:    "result_failed.csv",
		Headers: []string{internal.ColCodeType, internal.ColCode},
		Rows:    make([][]string, 0, len(r.Unmatched)),
	}
	for _, u := range r.Unmatched {
		t.Rows = append(t.Rows, []string{string(u.Type), u.Code})
	}
	return t
}
