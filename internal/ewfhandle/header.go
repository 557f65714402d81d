package ewfhandle

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// CaseInfo is the provenance metadata carried in the header2 section:
// case number, description, examiner, notes, and acquisition/system
// dates, round-tripped through a UTF-16 tab-delimited "main" record.
type CaseInfo struct {
	CaseNumber      string
	Description     string
	ExaminerName    string
	Notes           string
	AcquiredDate    string
	SystemDate      string
	OSVersion       string
	SoftwareVersion string
}

// encodeHeader2 renders info as UTF-16LE-with-BOM text in the
// "1\nmain\n<cols>\n<values>\n\n" grammar libewf's header2 sections use.
func encodeHeader2(info CaseInfo) ([]byte, error) {
	cols := "case_number\tdescription\texaminer_name\tnotes\tacquiry_date\tsystem_date\tos\tacquiry_software_version"
	vals := strings.Join([]string{
		info.CaseNumber, info.Description, info.ExaminerName, info.Notes,
		info.AcquiredDate, info.SystemDate, info.OSVersion, info.SoftwareVersion,
	}, "\t")
	plain := fmt.Sprintf("1\nmain\n%s\n%s\n\n", cols, vals)

	enc := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewEncoder()
	out, _, err := transform.Bytes(enc, []byte("﻿"+plain))
	if err != nil {
		return nil, ewferr.Wrap(ewferr.Conversion, "ewfhandle.encodeHeader2", err)
	}
	return out, nil
}

// decodeHeader2 parses a header2 section body back into CaseInfo.
func decodeHeader2(body []byte) (CaseInfo, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	plain, _, err := transform.Bytes(dec, body)
	if err != nil {
		return CaseInfo{}, ewferr.Wrap(ewferr.Conversion, "ewfhandle.decodeHeader2", err)
	}
	plain = bytes.TrimPrefix(plain, []byte("﻿"))
	lines := strings.Split(strings.TrimRight(string(plain), "\n"), "\n")
	if len(lines) < 4 {
		return CaseInfo{}, ewferr.New(ewferr.Conversion, "ewfhandle.decodeHeader2: truncated header")
	}
	vals := strings.Split(lines[3], "\t")
	get := func(i int) string {
		if i < len(vals) {
			return vals[i]
		}
		return ""
	}
	return CaseInfo{
		CaseNumber:      get(0),
		Description:     get(1),
		ExaminerName:    get(2),
		Notes:           get(3),
		AcquiredDate:    get(4),
		SystemDate:      get(5),
		OSVersion:       get(6),
		SoftwareVersion: get(7),
	}, nil
}
