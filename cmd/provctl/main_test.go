package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentprovenance/internal/cas"
	"github.com/Lllllllleong/documentprovenance/internal/extract"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"provctl"}, args...))
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAddressCommand(t *testing.T) {
	path := writeTemp(t, "hello.txt", "hello world")
	want, err := cas.RawAddress([]byte("hello world"))
	require.NoError(t, err)

	out, err := runApp(t, "address", path)
	require.NoError(t, err)
	assert.Equal(t, want.String(), strings.TrimSpace(out))
}

func TestAddressCommandStructured(t *testing.T) {
	a, err := runApp(t, "address", "--structured", writeTemp(t, "a.json", `{"b": 1, "a": "x"}`))
	require.NoError(t, err)
	b, err := runApp(t, "address", "--structured", writeTemp(t, "b.json", `{"a":"x","b":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = runApp(t, "address", "--structured", writeTemp(t, "c.json", `[1, 2]`))
	assert.Error(t, err)
}

func TestAssembleCommand(t *testing.T) {
	path := writeTemp(t, "record.json", `{
		"eventTime": "2024-03-01T12:29:59.000Z",
		"documentId": "doc-42",
		"contentSize": 11,
		"contentType": "text/plain",
		"generatedAtTime": "2024-03-01T12:30:00.25Z",
		"fileUrl": "https://assets.priorartarchive.org/uploads/org1/doc42",
		"fileName": "hello.txt",
		"fileHash": "bafkreifile",
		"textHash": "bafkreitext",
		"textSize": 11,
		"metadata": {"title": "Hello"},
		"metadataHash": "bafyreimeta"
	}`)

	out, err := runApp(t, "assemble", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"contentSize":"11B"`)
	assert.Contains(t, lines[0], `"generatedAtTime":"2024-03-01T12:30:00.250Z"`)

	addr, err := cas.RawAddress([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, addr.String(), lines[1])
}

func TestProcessAndListAssertions(t *testing.T) {
	tika := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tika/form":
			_, _ = w.Write([]byte("hello world"))
		case "/meta/form":
			_, _ = w.Write([]byte(`{"title": "Hello"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(tika.Close)

	dbPath := t.TempDir()
	file := writeTemp(t, "hello.txt", "hello world")

	out, err := runApp(t, "process",
		"--key", "uploads/org1/doc42",
		"--document-id", "doc-42",
		"--tika-url", tika.URL,
		"--db", dbPath,
		file)
	require.NoError(t, err)

	var res models.IngestResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "uploads/org1/doc42", res.Key)
	_, err = cas.ParseAddress(res.CID)
	require.NoError(t, err)

	out, err = runApp(t, "assertions", "--db", dbPath, "doc-42")
	require.NoError(t, err)
	var assertions []models.Assertion
	require.NoError(t, json.Unmarshal([]byte(out), &assertions))
	require.Len(t, assertions, 1)
	assert.Equal(t, res.CID, assertions[0].CID)
	assert.Equal(t, "org1", assertions[0].OrganizationID)
}

func newTikaServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		switch r.URL.Path {
		case "/tika/form":
			_, _ = w.Write([]byte("extracted text"))
		case "/meta/form":
			_, _ = w.Write([]byte(`{"title": "Hello"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessInMemory(t *testing.T) {
	tika := newTikaServer(t, http.StatusOK)

	out, err := runApp(t, "process",
		"--key", "uploads/org1/doc42",
		"--document-id", "doc-42",
		"--tika-url", tika.URL,
		writeTemp(t, "hello.txt", "hello world"))
	require.NoError(t, err)

	var res models.IngestResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "uploads/org1/doc42", res.Key)
	addr, err := cas.ParseAddress(res.CID)
	require.NoError(t, err)
	c, err := cid.Decode(addr.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(cid.Raw), c.Type())
	assert.Equal(t, uint64(1), c.Version())
}

func TestProcessExtractionFailure(t *testing.T) {
	tika := newTikaServer(t, http.StatusBadGateway)

	out, err := runApp(t, "process",
		"--key", "uploads/org1/doc42",
		"--document-id", "doc-42",
		"--tika-url", tika.URL,
		writeTemp(t, "hello.txt", "hello world"))
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrExtractionService)
	assert.Empty(t, out)
}

func TestProcessRejectsBadKey(t *testing.T) {
	_, err := runApp(t, "process",
		"--key", "doc42",
		"--document-id", "doc-42",
		"--tika-url", "http://127.0.0.1:1",
		writeTemp(t, "hello.txt", "hello world"))
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, "--log-level", "loud", "address", writeTemp(t, "x", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
