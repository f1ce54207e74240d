package rtc

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/connectra/meeting-client/internal/core"
)

// FileScreenSources lists the IVF files of a directory as shareable
// sources. A PNG next to a source (same base name) becomes its thumbnail.
type FileScreenSources struct {
	Dir string
}

func (s FileScreenSources) ListScreenSources(ctx context.Context) ([]core.ScreenSource, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []core.ScreenSource
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ivf") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		src := core.ScreenSource{ID: e.Name(), Name: strings.ReplaceAll(base, "_", " ")}
		if png, err := os.ReadFile(filepath.Join(s.Dir, base+".png")); err == nil {
			src.Thumbnail = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
