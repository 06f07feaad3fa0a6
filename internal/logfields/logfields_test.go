package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"BuildID", KeyBuildID, "b1", BuildID("b1")},
		{"Stage", KeyStage, "render", Stage("render")},
		{"State", KeyState, "Idle", State("Idle")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Page", KeyPage, "blog/a.md", Page("blog/a.md")},
		{"Template", KeyTemplate, "page.html", Template("page.html")},
		{"Entity", KeyEntity, "page:a.md", Entity("page:a.md")},
		{"Language", KeyLanguage, "python", Language("python")},
		{"Code", KeyCode, "TemplateNotFound", Code("TemplateNotFound")},
		{"URL", KeyURL, "/blog/", URL("/blog/")},
		{"CacheKey", KeyCacheKey, "0123456789ab", CacheKey("0123456789abcdef")},
		{"Error", KeyError, "boom", Error(errors.New("boom"))},
		{"NilError", KeyError, "", Error(nil)},
	}

	for _, tc := range cases {
		// Key drift would break log ingestion schemas.
		assert.Equal(t, tc.attrKey, tc.attr.Key, tc.name)
		assert.Equal(t, tc.attrVal, tc.attr.Value.String(), tc.name)
	}
}

func TestDurationMilliseconds(t *testing.T) {
	a := Duration(1500 * time.Microsecond)
	assert.Equal(t, KeyDurationMS, a.Key)
	assert.InDelta(t, 1.5, a.Value.Float64(), 0.0001)
}
