package router

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/p0s/takopi/internal/fsstore"
	"github.com/p0s/takopi/internal/model"
)

// LastResumeCache remembers, per thread, the most recently observed resume
// token, so a thread that has an ongoing engine session keeps landing on
// that engine even on a message that carries neither an explicit engine
// prefix nor a pasted resume line. This is a supplemental enrichment beyond
// the core router algorithm (spec §4.7 step 3 otherwise falls straight to
// the default engine); it is consulted only after steps 1-2 find no match.
//
// It is routing metadata, not conversation history, so it does not run
// afoul of the "no persistent storage of conversation history" non-goal.
// Built on the fsstore atomic JSON index (writes guarded by a flock).
type LastResumeCache struct {
	path     string
	lockPath string
}

// NewLastResumeCache stores its index under dir (typically the state
// directory's "router" subdirectory).
func NewLastResumeCache(dir string) *LastResumeCache {
	return &LastResumeCache{
		path:     filepath.Join(dir, "last_resume.json"),
		lockPath: filepath.Join(dir, "last_resume.lock"),
	}
}

type lastResumeMeta struct {
	EngineID string `json:"engine_id"`
}

// Remember records tok as the latest resume token seen on threadID.
func (c *LastResumeCache) Remember(ctx context.Context, threadID string, tok model.ResumeToken) error {
	meta, err := json.Marshal(lastResumeMeta{EngineID: string(tok.EngineID)})
	if err != nil {
		return err
	}
	return fsstore.MutateIndex(ctx, c.path, c.lockPath, fsstore.FileOptions{}, func(f *fsstore.IndexFile) error {
		f.Entries[threadID] = fsstore.IndexEntry{
			Ref:       tok.Raw,
			UpdatedAt: time.Now().UTC(),
			Meta:      meta,
		}
		return nil
	})
}

// Lookup returns the last resume token seen on threadID, if any.
func (c *LastResumeCache) Lookup(threadID string) (model.ResumeToken, bool) {
	f, ok, err := fsstore.ReadIndex(c.path)
	if err != nil || !ok {
		return model.ResumeToken{}, false
	}
	entry, ok := f.Entries[threadID]
	if !ok || entry.Ref == "" {
		return model.ResumeToken{}, false
	}
	var meta lastResumeMeta
	_ = json.Unmarshal(entry.Meta, &meta)
	if meta.EngineID == "" {
		return model.ResumeToken{}, false
	}
	return model.ResumeToken{EngineID: model.EngineID(meta.EngineID), Raw: entry.Ref}, true
}
