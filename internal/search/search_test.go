// internal/search/search_test.go
package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/serp-harvester/internal/browser"
)

type mockPage struct {
	mock.Mock
}

func (m *mockPage) Navigate(ctx context.Context, url string, milestone browser.LoadMilestone) error {
	return m.Called(ctx, url, milestone).Error(0)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base, term, want string
	}{
		{"https://www.google.com/search", "rust vs go", "https://www.google.com/search?q=rust+vs+go"},
		{"https://www.google.com/search", "c++ & go", "https://www.google.com/search?q=c%2B%2B+%26+go"},
		{"https://www.google.com/search", "", "https://www.google.com/search?q="},
		{"https://www.google.com/search?hl=en", "go", "https://www.google.com/search?hl=en&q=go"},
		{"https://www.google.com/search", "école/été", "https://www.google.com/search?q=%C3%A9cole%2F%C3%A9t%C3%A9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildURL(tt.base, tt.term), "term %q", tt.term)
	}
}

func TestFirstWord(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello world\nmore text", "hello"},
		{"singleline", "singleline"},
		{"", ""},
		{"\nsecond line only", ""},
		{"   padded   words  ", "padded"},
		{"tab\tseparated", "tab"},
		{"crlf\r\nnext", "crlf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirstWord(tt.in), "input %q", tt.in)
	}
}

func TestNavigatorSearch(t *testing.T) {
	n := NewNavigator("https://www.google.com/search", zaptest.NewLogger(t))

	t.Run("waits for DOM content", func(t *testing.T) {
		page := new(mockPage)
		page.On("Navigate", mock.Anything, "https://www.google.com/search?q=rust+vs+go", browser.DOMContentLoaded).Return(nil).Once()

		require.NoError(t, n.Search(context.Background(), page, "rust vs go"))
		page.AssertExpectations(t)
	})

	t.Run("propagates navigation errors", func(t *testing.T) {
		navErr := &browser.NavigationError{URL: "x", Milestone: browser.DOMContentLoaded, Err: context.DeadlineExceeded}
		page := new(mockPage)
		page.On("Navigate", mock.Anything, mock.Anything, browser.DOMContentLoaded).Return(navErr)

		err := n.Search(context.Background(), page, "go")
		var ne *browser.NavigationError
		require.True(t, errors.As(err, &ne))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
