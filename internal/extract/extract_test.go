package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var helloFile = File{Name: "hello.txt", ContentType: "text/plain", Body: []byte("hello world")}

func newTikaServer(t *testing.T, handler http.HandlerFunc) *TikaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewTikaClient(srv.URL+"/", 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestTikaClient(t *testing.T) {
	c := newTikaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f, header, err := r.FormFile("hello.txt")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		assert.Equal(t, "hello.txt", header.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "hello world", string(body))

		switch r.URL.Path {
		case "/tika/form":
			assert.Equal(t, "text/plain", r.Header.Get("Accept"))
			_, _ = w.Write([]byte("hello world"))
		case "/meta/form":
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			_, _ = w.Write([]byte(`{"title": "Hello", "Content-Type": "text/plain"}`))
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	text, err := c.ExtractText(ctx, helloFile)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(text))

	meta, err := c.ExtractMetadata(ctx, helloFile)
	require.NoError(t, err)
	assert.Equal(t, "Hello", meta["title"])
}

func TestTikaClientErrors(t *testing.T) {
	ctx := context.Background()

	failing := newTikaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media type", http.StatusUnprocessableEntity)
	})
	_, err := failing.ExtractText(ctx, helloFile)
	assert.ErrorIs(t, err, ErrExtractionService)
	_, err = failing.ExtractMetadata(ctx, helloFile)
	assert.ErrorIs(t, err, ErrExtractionService)

	garbled := newTikaServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})
	_, err = garbled.ExtractMetadata(ctx, helloFile)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	unreachable, err := NewTikaClient("http://127.0.0.1:1", time.Second)
	require.NoError(t, err)
	_, err = unreachable.ExtractText(ctx, helloFile)
	assert.ErrorIs(t, err, ErrExtractionService)

	_, err = NewTikaClient("", time.Second)
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(`{"title":"Hello","pages":2}`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, meta["pages"])

	for _, body := range []string{"", "null", "[1,2]", `"title"`, "{"} {
		_, err := ParseMetadata([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedResponse, body)
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Hello", Title(map[string]any{"title": "Hello"}))
	assert.Equal(t, "DC", Title(map[string]any{"dc:title": "DC"}))
	assert.Equal(t, "First", Title(map[string]any{"title": []any{"First", "Second"}}))
	assert.Equal(t, "", Title(map[string]any{"title": ""}))
	assert.Equal(t, "", Title(nil))
}

type fakeGenerator struct {
	reply string
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	if f.err != nil {
		return nil, f.err
	}
	if f.reply == "" {
		return &genai.GenerateContentResponse{}, nil
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(f.reply)}},
		}},
	}, nil
}

func TestVertexExtractor(t *testing.T) {
	ctx := context.Background()
	text := &fakeGenerator{reply: "  hello world\n"}
	meta := &fakeGenerator{reply: "```json\n{\"title\": \"Hello\"}\n```"}
	e := NewVertexExtractorWithModels(text, meta)

	got, err := e.ExtractText(ctx, helloFile)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	blob, ok := text.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "text/plain", blob.MIMEType)
	assert.Equal(t, helloFile.Body, blob.Data)

	m, err := e.ExtractMetadata(ctx, helloFile)
	require.NoError(t, err)
	assert.Equal(t, "Hello", m["title"])
}

func TestVertexExtractorErrors(t *testing.T) {
	ctx := context.Background()

	e := NewVertexExtractorWithModels(&fakeGenerator{err: errors.New("quota")}, &fakeGenerator{})
	_, err := e.ExtractText(ctx, helloFile)
	assert.ErrorIs(t, err, ErrExtractionService)
	_, err = e.ExtractMetadata(ctx, helloFile)
	assert.ErrorIs(t, err, ErrExtractionService)

	e = NewVertexExtractorWithModels(&fakeGenerator{}, &fakeGenerator{reply: "I cannot answer that"})
	_, err = e.ExtractMetadata(ctx, helloFile)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestVertexExtractorKeepsUnreadablePDF(t *testing.T) {
	text := &fakeGenerator{reply: "x"}
	e := NewVertexExtractorWithModels(text, &fakeGenerator{})
	file := File{Name: "broken.pdf", ContentType: "application/pdf", Body: []byte("not a pdf")}
	_, err := e.ExtractText(context.Background(), file)
	require.NoError(t, err)
	blob := text.parts[0].(genai.Blob)
	assert.Equal(t, file.Body, blob.Data)
}
