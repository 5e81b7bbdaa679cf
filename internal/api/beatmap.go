package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pp-tracker/internal/config"
	"pp-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// BeatmapDownloader serves .osu files from a local directory, downloading
// missing ones on first use.
type BeatmapDownloader struct {
	baseURL  string
	cacheDir string
	client   *fasthttp.Client
	logger   zerolog.Logger
}

func NewBeatmapDownloader(cfg *config.Config, logger zerolog.Logger) *BeatmapDownloader {
	return &BeatmapDownloader{
		baseURL:  strings.TrimRight(cfg.BeatmapURL, "/"),
		cacheDir: cfg.BeatmapCacheDir,
		client:   newHTTPClient(),
		logger:   logger,
	}
}

func (d *BeatmapDownloader) path(mapID int64) string {
	return filepath.Join(d.cacheDir, strconv.FormatInt(mapID, 10)+".osu")
}

func (d *BeatmapDownloader) Get(ctx context.Context, mapID int64) (*domain.Beatmap, error) {
	data, err := os.ReadFile(d.path(mapID))
	if err == nil && len(data) > 0 {
		return &domain.Beatmap{ID: mapID, Data: data}, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn().Err(err).Int64("map_id", mapID).Msg("failed to read cached beatmap, downloading")
	}

	data, err = d.download(ctx, mapID)
	if err != nil {
		return nil, err
	}

	if err := d.store(mapID, data); err != nil {
		d.logger.Warn().Err(err).Int64("map_id", mapID).Msg("failed to cache beatmap file")
	}
	return &domain.Beatmap{ID: mapID, Data: data}, nil
}

func (d *BeatmapDownloader) download(ctx context.Context, mapID int64) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/%d", d.baseURL, mapID))
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := send(ctx, d.client, req, resp); err != nil {
		return nil, fmt.Errorf("failed to download beatmap %d: %w", mapID, err)
	}

	switch {
	case resp.StatusCode() == fasthttp.StatusNotFound:
		return nil, fmt.Errorf("beatmap %d: %w", mapID, domain.ErrBeatmapNotFound)
	case resp.StatusCode() != fasthttp.StatusOK:
		return nil, fmt.Errorf("failed to download beatmap %d: status %d", mapID, resp.StatusCode())
	case len(resp.Body()) == 0:
		return nil, fmt.Errorf("beatmap %d: empty file: %w", mapID, domain.ErrBeatmapNotFound)
	}

	d.logger.Debug().Int64("map_id", mapID).Int("bytes", len(resp.Body())).Msg("downloaded beatmap")
	return append([]byte(nil), resp.Body()...), nil
}

// store writes through a temp file so concurrent readers never see a
// partial beatmap.
func (d *BeatmapDownloader) store(mapID int64, data []byte) error {
	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.cacheDir, "download-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.path(mapID))
}
