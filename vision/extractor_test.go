package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmcouncil/council/gateway/gatewaytest"
)

const wellFormedResponse = `## EXTRACTED TEXT
Invoice #42 from Acme Corp, total $1,234.56

## KEY ENTITIES
- Acme Corp
- Invoice #42
- $1,234.56

## TABLES/STRUCTURED DATA
| Item | Price |
|------|-------|
| Widget | $1,234.56 |

## CONFIDENCE
85

## WARNINGS
- Bottom edge slightly cropped`

var testImage = []byte{0x89, 0x50, 0x4e, 0x47}

func testExtractor(mock *gatewaytest.Mock) *Extractor {
	return NewExtractor(mock, Config{
		DefaultModel: "vis/primary",
		Fallbacks:    []string{"vis/fb1", "vis/fb2"},
	})
}

func TestExtractFirstModelSucceeds(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Respond("vis/primary", wellFormedResponse)

	vc, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "")
	require.NoError(t, err)

	assert.Equal(t, "vis/primary", vc.ModelUsed)
	assert.Equal(t, "Invoice #42 from Acme Corp, total $1,234.56", vc.ExtractedText)
	assert.Equal(t, []string{"Acme Corp", "Invoice #42", "$1,234.56"}, vc.Entities)
	require.Len(t, vc.Tables, 1)
	assert.Contains(t, vc.Tables[0].Raw, "Widget")
	assert.InDelta(t, 0.85, vc.Confidence, 1e-9)
	assert.Equal(t, []string{"Bottom edge slightly cropped"}, vc.Warnings)

	// No fallback was touched.
	assert.Empty(t, mock.CallsFor("vis/fb1"))
}

func TestExtractFallsThroughChain(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Fail("vis/primary", errors.New("rate limited"))
	mock.Fail("vis/fb1", errors.New("model offline"))
	mock.Respond("vis/fb2", wellFormedResponse)

	vc, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "")
	require.NoError(t, err)
	assert.Equal(t, "vis/fb2", vc.ModelUsed)

	// Strictly sequential: two failures then the success, three calls total.
	assert.Equal(t, []string{"vis/primary", "vis/fb1", "vis/fb2"}, mock.ModelsCalled())
}

func TestExtractPreferredModelFirst(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Respond("vis/custom", wellFormedResponse)

	vc, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "vis/custom")
	require.NoError(t, err)
	assert.Equal(t, "vis/custom", vc.ModelUsed)
	assert.Equal(t, []string{"vis/custom"}, mock.ModelsCalled())
}

func TestExtractPreferredDuplicateOfDefault(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Fail("vis/primary", errors.New("down"))
	mock.Fail("vis/fb1", errors.New("down"))
	mock.Fail("vis/fb2", errors.New("down"))

	_, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "vis/primary")
	require.Error(t, err)

	// The preferred model equals the default, so it is attempted once.
	assert.Equal(t, []string{"vis/primary", "vis/fb1", "vis/fb2"}, mock.ModelsCalled())
}

func TestExtractExhaustion(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Fail("vis/primary", errors.New("down"))
	mock.Fail("vis/fb1", errors.New("down"))
	mock.Fail("vis/fb2", errors.New("down"))

	vc, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "")
	require.Error(t, err)
	assert.Nil(t, vc)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 3, mock.CallCount())
}

func TestExtractEmptyContentAdvancesChain(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Respond("vis/primary", "")
	mock.Respond("vis/fb1", wellFormedResponse)

	vc, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "")
	require.NoError(t, err)
	assert.Equal(t, "vis/fb1", vc.ModelUsed)
}

func TestExtractValidatesInput(t *testing.T) {
	x := testExtractor(gatewaytest.NewMock())

	_, err := x.Extract(context.Background(), nil, "image/png", "key", "")
	assert.Error(t, err)

	_, err = x.Extract(context.Background(), testImage, "", "key", "")
	assert.Error(t, err)
}

func TestExtractSendsMultimodalMessage(t *testing.T) {
	mock := gatewaytest.NewMock()
	mock.Respond("vis/primary", wellFormedResponse)

	_, err := testExtractor(mock).Extract(context.Background(), testImage, "image/png", "key", "")
	require.NoError(t, err)

	calls := mock.CallsFor("vis/primary")
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	assert.Equal(t, "key", req.APIKey)

	require.Len(t, req.Messages, 2)
	user := req.Messages[1]
	require.Len(t, user.Parts, 2)
	assert.Equal(t, "image_url", user.Parts[0].Type)
	assert.Contains(t, user.Parts[0].ImageURL.URL, "data:image/png;base64,")
	assert.Equal(t, "text", user.Parts[1].Type)
}
