package application

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
)

func TestIssueCodec_RoundTrip(t *testing.T) {
	in := []model.PersistedIssue{
		{IssueKey: "ABC-1", Elapsed: 90 * time.Minute, Reported: 85 * time.Minute, Comment: "pairing"},
		{IssueKey: "", Elapsed: 0},
		{IssueKey: "ÆØÅ-7", Elapsed: 1500 * time.Millisecond, Comment: "unicode ✓"},
	}

	out, err := DecodeIssues(EncodeIssues(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestIssueCodec_EmptyList(t *testing.T) {
	out, err := DecodeIssues(EncodeIssues(nil))
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = DecodeIssues("")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestIssueCodec_ClampsOutOfRangeDurations(t *testing.T) {
	out, err := DecodeIssues(EncodeIssues([]model.PersistedIssue{
		{IssueKey: "A", Elapsed: -time.Second, Reported: time.Second},
		{IssueKey: "B", Elapsed: time.Minute, Reported: time.Hour},
	}))
	require.NoError(t, err)
	assert.Zero(t, out[0].Elapsed)
	assert.Zero(t, out[0].Reported)
	assert.Equal(t, time.Minute, out[1].Reported)
}

func TestIssueCodec_CorruptInputs(t *testing.T) {
	valid, err := base64.StdEncoding.DecodeString(EncodeIssues([]model.PersistedIssue{
		{IssueKey: "ABC-1", Elapsed: time.Minute, Comment: "x"},
	}))
	require.NoError(t, err)

	wrongVersion := append([]byte{}, valid...)
	wrongVersion[len(issueBlobMagic)] = 2

	tests := map[string]string{
		"not base64":         "%%%",
		"foreign bytes":      base64.StdEncoding.EncodeToString([]byte("AAEAAAD/////AQAAAAAAAAAMAgAAAE")),
		"wrong version":      base64.StdEncoding.EncodeToString(wrongVersion),
		"truncated":          base64.StdEncoding.EncodeToString(valid[:len(valid)-2]),
		"trailing bytes":     base64.StdEncoding.EncodeToString(append(append([]byte{}, valid...), 0x00)),
		"magic only":         base64.StdEncoding.EncodeToString([]byte(issueBlobMagic)),
		"huge count":         base64.StdEncoding.EncodeToString(append([]byte(issueBlobMagic), 1, 0xff, 0xff, 0xff, 0x7f)),
		"invalid utf8 key":   base64.StdEncoding.EncodeToString(append([]byte(issueBlobMagic), 1, 1, 2, 0xff, 0xfe, 0, 0, 0)),
		"reported > elapsed": base64.StdEncoding.EncodeToString(append([]byte(issueBlobMagic), 1, 1, 1, 'A', 1, 2, 0)),
	}

	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeIssues(blob)
			assert.ErrorIs(t, err, model.ErrPersistenceCorrupt)
		})
	}
}
