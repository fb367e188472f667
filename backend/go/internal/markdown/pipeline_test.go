package markdown

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Leviosa/backend/go/internal/llm"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/internal/prompt"
	"Leviosa/backend/go/pkg/logger"
)

// fakeLLM 记录每次调用，并按顺序返回预设结果。
type fakeLLM struct {
	mu      sync.Mutex
	calls   []*models.GenerateContentRequest
	replies []string
	errs    []error
}

func (f *fakeLLM) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := "reply"
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &models.GenerateContentResponse{Content: []models.Content{{Parts: []*models.Part{{Text: reply}}}}}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func textRegion(page int, text string, top float64) models.Region {
	return models.Region{
		ID:       "region_x",
		Type:     models.RegionText,
		BBoxRaw:  models.BBox{0, top * 100, 100, top*100 + 10},
		BBoxNorm: models.BBox{0, top, 1, top + 0.1},
		Content:  models.TextContent(text),
		Page:     page,
	}
}

func twoPageDoc() *models.Document {
	return &models.Document{Pages: []models.Page{
		{Page: 1, Results: []models.Region{textRegion(1, "A", 0.1)}},
		{Page: 2, Results: []models.Region{textRegion(2, "B", 0.1)}},
	}}
}

// newPipeline 使用不存在的提示词目录，从而得到内置默认提示词。
func newPipeline(gen llm.LLM) *Pipeline {
	return NewPipeline(gen, prompt.NewLoader("testdata-missing"), logger.Discard())
}

func TestRawText_PageMarkers(t *testing.T) {
	got := RawText(twoPageDoc(), nil)
	assert.Equal(t, "--- Page 1 ---\n\nA\n\n--- Page 2 ---\n\nB\n", got)
}

func TestRawText_SkipsEmptyAndRendersTables(t *testing.T) {
	doc := &models.Document{Pages: []models.Page{{Page: 1, Results: []models.Region{
		textRegion(1, "Heading", 0.1),
		{Type: models.RegionFigure, Content: models.RawContent("opaque")},
		textRegion(1, "", 0.3),
		{Type: models.RegionTable, Content: models.TableContent("<table><tr><th>Name</th></tr><tr><td>Ann</td></tr></table>", nil)},
	}}}}

	got := RawText(doc, NewTableRenderer())

	assert.True(t, strings.HasPrefix(got, "--- Page 1 ---\n\nHeading\n"))
	assert.Contains(t, got, "Name")
	assert.Contains(t, got, "Ann")
	assert.NotContains(t, got, "opaque")
	assert.NotContains(t, got, "<table>")
}

func TestPayload_UsesNormalizedBoxesInReadingOrder(t *testing.T) {
	page := models.Page{Page: 3, Results: []models.Region{
		textRegion(3, "first", 0.1),
		textRegion(3, "second", 0.5),
	}}

	s, err := Payload([]models.Page{page})
	require.NoError(t, err)

	var decoded struct {
		Pages []struct {
			Page    int `json:"page"`
			Regions []struct {
				Type    string            `json:"type"`
				BBox    []float64         `json:"bbox"`
				Content map[string]string `json:"content"`
			} `json:"regions"`
		} `json:"pages"`
	}
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	require.Len(t, decoded.Pages, 1)
	assert.Equal(t, 3, decoded.Pages[0].Page)
	require.Len(t, decoded.Pages[0].Regions, 2)
	assert.Equal(t, "first", decoded.Pages[0].Regions[0].Content["text"])
	assert.Equal(t, "second", decoded.Pages[0].Regions[1].Content["text"])
	assert.Equal(t, []float64{0, 0.5, 1, 0.6}, decoded.Pages[0].Regions[1].BBox)
	assert.Equal(t, "text", decoded.Pages[0].Regions[0].Type)
}

func TestConvert_NoCredentialFallsBackToRawText(t *testing.T) {
	p := newPipeline(nil)
	art := p.Convert(context.Background(), twoPageDoc())

	assert.Equal(t, art.RawText, art.Markdown)
	assert.Equal(t, "--- Page 1 ---\n\nA\n\n--- Page 2 ---\n\nB\n", art.Markdown)
	assert.False(t, p.HasCredential())
}

func TestConvert_SingleCallWithConversionPrompt(t *testing.T) {
	gen := &fakeLLM{replies: []string{"# Doc"}}
	art := newPipeline(gen).Convert(context.Background(), twoPageDoc())

	assert.Equal(t, "# Doc", art.Markdown)
	assert.Equal(t, "--- Page 1 ---\n\nA\n\n--- Page 2 ---\n\nB\n", art.RawText)
	require.Equal(t, 1, gen.callCount())

	req := gen.calls[0]
	assert.Equal(t, prompt.DefaultConversion, req.SystemInstruction)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, ConversionTemperature, *req.Temperature)
	user := req.Content[0].Text()
	assert.Contains(t, user, `"page":1`)
	assert.Contains(t, user, `"page":2`)
	assert.Less(t, strings.Index(user, `"A"`), strings.Index(user, `"B"`))
}

func TestConvert_ResponseErrorBecomesSentinel(t *testing.T) {
	gen := &fakeLLM{errs: []error{&llm.ResponseError{StatusCode: 401, Body: `{"error":"bad key"}`}}}
	art := newPipeline(gen).Convert(context.Background(), twoPageDoc())

	assert.Equal(t, `Error in LLM response: {"error":"bad key"}`, art.Markdown)
	assert.True(t, IsDiagnostic(art.Markdown))
}

func TestConvert_TransportErrorBecomesSentinel(t *testing.T) {
	gen := &fakeLLM{errs: []error{errors.New("dial tcp: timeout")}}
	art := newPipeline(gen).Convert(context.Background(), twoPageDoc())

	assert.Equal(t, "Error converting to markdown: dial tcp: timeout\n\nRaw text:\n"+art.RawText, art.Markdown)
}

func TestConvertDirect(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		_, err := newPipeline(nil).ConvertDirect(context.Background(), twoPageDoc())
		assert.ErrorIs(t, err, models.ErrMissingCredential)
	})

	t.Run("transport error propagates", func(t *testing.T) {
		boom := errors.New("connection reset")
		_, err := newPipeline(&fakeLLM{errs: []error{boom}}).ConvertDirect(context.Background(), twoPageDoc())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("response error stays in markdown", func(t *testing.T) {
		gen := &fakeLLM{errs: []error{&llm.ResponseError{StatusCode: 200, Body: "{}"}}}
		art, err := newPipeline(gen).ConvertDirect(context.Background(), twoPageDoc())
		require.NoError(t, err)
		assert.Equal(t, "Error in LLM response: {}", art.Markdown)
	})

	t.Run("success carries layout data", func(t *testing.T) {
		doc := twoPageDoc()
		art, err := newPipeline(&fakeLLM{replies: []string{"ok"}}).ConvertDirect(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, "ok", art.Markdown)
		assert.Same(t, doc, art.LayoutData)
	})
}

func collect(ch <-chan models.PageMarkdown) []models.PageMarkdown {
	var out []models.PageMarkdown
	for pm := range ch {
		out = append(out, pm)
	}
	return out
}

func TestStream_OneCallPerPageInOrder(t *testing.T) {
	gen := &fakeLLM{replies: []string{"page one", "page two"}}
	pages := collect(newPipeline(gen).Stream(context.Background(), twoPageDoc()))

	require.Len(t, pages, 2)
	assert.Equal(t, models.PageMarkdown{Page: 1, Markdown: "page one"}, pages[0])
	assert.Equal(t, models.PageMarkdown{Page: 2, Markdown: "page two"}, pages[1])
	assert.Equal(t, "page one\npage two", JoinPages(pages))

	require.Equal(t, 2, gen.callCount())
	assert.Contains(t, gen.calls[0].Content[0].Text(), `"A"`)
	assert.NotContains(t, gen.calls[0].Content[0].Text(), `"B"`)
	assert.Contains(t, gen.calls[1].Content[0].Text(), `"B"`)
}

func TestStream_NoCredentialYieldsPageText(t *testing.T) {
	pages := collect(newPipeline(nil).Stream(context.Background(), twoPageDoc()))

	require.Len(t, pages, 2)
	assert.Equal(t, "A\n", pages[0].Markdown)
	assert.Equal(t, "B\n", pages[1].Markdown)
}

func TestStream_PageErrorSentinel(t *testing.T) {
	gen := &fakeLLM{errs: []error{nil, errors.New("timeout")}, replies: []string{"ok"}}
	pages := collect(newPipeline(gen).Stream(context.Background(), twoPageDoc()))

	require.Len(t, pages, 2)
	assert.Equal(t, "ok", pages[0].Markdown)
	assert.Equal(t, "Error converting page 2 to markdown: timeout", pages[1].Markdown)
}

func TestStream_StopsAfterCancel(t *testing.T) {
	doc := &models.Document{}
	for i := 1; i <= 5; i++ {
		doc.Pages = append(doc.Pages, models.Page{Page: i, Results: []models.Region{textRegion(i, "x", 0.1)}})
	}
	gen := &fakeLLM{}
	ctx, cancel := context.WithCancel(context.Background())

	ch := newPipeline(gen).Stream(ctx, doc)
	first := <-ch
	assert.Equal(t, 1, first.Page)
	cancel()

	// 通道必须关闭；取消后最多还有一次已发起的调用
	for range ch {
	}
	assert.LessOrEqual(t, gen.callCount(), 2)
}

func TestRefine_TwoCalls(t *testing.T) {
	gen := &fakeLLM{replies: []string{"draft", "polished"}}
	art := newPipeline(gen).Refine(context.Background(), twoPageDoc())

	assert.Equal(t, "polished", art.Markdown)
	assert.Equal(t, "--- Page 1 ---\n\nA\n\n--- Page 2 ---\n\nB\n", art.RawText)
	require.Equal(t, 2, gen.callCount())

	second := gen.calls[1]
	assert.Equal(t, prompt.DefaultRefinement, second.SystemInstruction)
	assert.Equal(t, "draft", second.Content[0].Text())
	require.NotNil(t, second.Temperature)
	assert.Equal(t, RefineTemperature, *second.Temperature)
}

func TestRefine_FailureSentinel(t *testing.T) {
	gen := &fakeLLM{errs: []error{nil, errors.New("reset by peer")}, replies: []string{"draft"}}
	art := newPipeline(gen).Refine(context.Background(), twoPageDoc())

	assert.Equal(t, "Failed to refine markdown: reset by peer", art.Markdown)
}

func TestRefine_NoCredentialReturnsRawText(t *testing.T) {
	art := newPipeline(nil).Refine(context.Background(), twoPageDoc())
	assert.Equal(t, art.RawText, art.Markdown)
}

func TestRefine_SkipsSecondCallWhenDraftFails(t *testing.T) {
	gen := &fakeLLM{errs: []error{errors.New("down")}}
	art := newPipeline(gen).Refine(context.Background(), twoPageDoc())

	assert.Equal(t, 1, gen.callCount())
	assert.True(t, strings.HasPrefix(art.Markdown, "Error converting to markdown: down"))
}

func TestRefineDirect(t *testing.T) {
	_, err := newPipeline(nil).RefineDirect(context.Background(), "# x")
	assert.ErrorIs(t, err, models.ErrMissingCredential)

	boom := errors.New("eof")
	_, err = newPipeline(&fakeLLM{errs: []error{boom}}).RefineDirect(context.Background(), "# x")
	assert.ErrorIs(t, err, boom)

	out, err := newPipeline(&fakeLLM{replies: []string{"# y"}}).RefineDirect(context.Background(), "# x")
	require.NoError(t, err)
	assert.Equal(t, "# y", out)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<table>")
}
