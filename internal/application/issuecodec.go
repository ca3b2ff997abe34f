package application

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
)

// Issue snapshot blob, version 1, before base64:
//
//	"SWIS" | version (1 byte) | uvarint count |
//	count × ( uvarint len | key | uvarint elapsed ns | uvarint reported ns |
//	          uvarint len | comment )
//
// Any other version, truncation or trailing byte is corrupt.
const (
	issueBlobMagic   = "SWIS"
	issueBlobVersion = 1
)

// EncodeIssues serializes the issue snapshot list into a base64 blob.
func EncodeIssues(issues []model.PersistedIssue) string {
	buf := make([]byte, 0, 16+len(issues)*24)
	buf = append(buf, issueBlobMagic...)
	buf = append(buf, issueBlobVersion)
	buf = binary.AppendUvarint(buf, uint64(len(issues)))

	for _, issue := range issues {
		elapsed := max(issue.Elapsed, 0)
		reported := min(max(issue.Reported, 0), elapsed)
		buf = appendString(buf, issue.IssueKey)
		buf = binary.AppendUvarint(buf, uint64(elapsed))
		buf = binary.AppendUvarint(buf, uint64(reported))
		buf = appendString(buf, issue.Comment)
	}

	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeIssues parses a blob produced by EncodeIssues. An empty blob is an
// empty list. Every failure wraps model.ErrPersistenceCorrupt.
func DecodeIssues(blob string) ([]model.PersistedIssue, error) {
	if blob == "" {
		return []model.PersistedIssue{}, nil
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", model.ErrPersistenceCorrupt)
	}

	if !bytes.HasPrefix(data, []byte(issueBlobMagic)) {
		return nil, fmt.Errorf("missing magic: %w", model.ErrPersistenceCorrupt)
	}
	r := bytes.NewReader(data[len(issueBlobMagic):])

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("missing version: %w", model.ErrPersistenceCorrupt)
	}
	if version != issueBlobVersion {
		return nil, fmt.Errorf("unsupported version %d: %w", version, model.ErrPersistenceCorrupt)
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read count: %w", model.ErrPersistenceCorrupt)
	}
	// Every entry takes at least four bytes.
	if count > uint64(r.Len())/4 {
		return nil, fmt.Errorf("count %d exceeds payload: %w", count, model.ErrPersistenceCorrupt)
	}

	issues := make([]model.PersistedIssue, 0, count)
	for i := uint64(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d key: %w", i, err)
		}
		elapsed, err := binary.ReadUvarint(r)
		if err != nil || elapsed > math.MaxInt64 {
			return nil, fmt.Errorf("entry %d elapsed: %w", i, model.ErrPersistenceCorrupt)
		}
		reported, err := binary.ReadUvarint(r)
		if err != nil || reported > elapsed {
			return nil, fmt.Errorf("entry %d reported: %w", i, model.ErrPersistenceCorrupt)
		}
		comment, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d comment: %w", i, err)
		}
		issues = append(issues, model.PersistedIssue{
			IssueKey: key,
			Elapsed:  time.Duration(elapsed),
			Reported: time.Duration(reported),
			Comment:  comment,
		})
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes: %w", r.Len(), model.ErrPersistenceCorrupt)
	}
	return issues, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return "", model.ErrPersistenceCorrupt
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return "", model.ErrPersistenceCorrupt
	}
	if !utf8.Valid(b) {
		return "", model.ErrPersistenceCorrupt
	}
	return string(b), nil
}
