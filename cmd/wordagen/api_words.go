package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CTAG07/Wordagen/pkg/corpus"
	"github.com/CTAG07/Wordagen/pkg/markov"
	"github.com/CTAG07/Wordagen/pkg/modelcache"
	"github.com/CTAG07/Wordagen/pkg/syllable"
	"github.com/CTAG07/Wordagen/pkg/wordagen"
)

const (
	defaultAPICount = 10
	modeMarkov      = "markov"
	modeSyllable    = "syllable"
)

// WordsAPI holds the dependencies for the generation API handlers.
type WordsAPI struct {
	service  *wordagen.Service
	syllable *syllable.Generator
	backend  modelcache.Backend
	config   *Config
	logger   *slog.Logger
}

// NewWordsAPI creates a new instance of the WordsAPI. backend may be nil.
func NewWordsAPI(service *wordagen.Service, syl *syllable.Generator, backend modelcache.Backend, config *Config, logger *slog.Logger) *WordsAPI {
	return &WordsAPI{
		service:  service,
		syllable: syl,
		backend:  backend,
		config:   config,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api endpoints.
func (a *WordsAPI) RegisterRoutes(r chi.Router) {
	r.Get("/api/words", a.handleWords)
	r.Get("/api/words/stream", a.handleWordsStream)
	r.Get("/api/models", a.handleModels)
	r.Get("/api/sources", a.handleSources)
	r.Get("/api/version", a.handleVersion)
}

// WordsResponse is the body of a successful /api/words request.
type WordsResponse struct {
	Words  []string `json:"words"`
	Mode   string   `json:"mode"`
	Source string   `json:"source,omitempty"`
	Order  int      `json:"order,omitempty"`
	Cutoff float64  `json:"cutoff,omitempty"`
	Min    int      `json:"min"`
	Max    int      `json:"max"`
	Seed   uint64   `json:"seed"`
}

// wordsRequest is a parsed /api/words query.
type wordsRequest struct {
	mode   string
	opts   wordagen.Options
	length lengthRange
	count  int
	prefix string
	suffix string
	seed   uint64
	novel  bool
}

// parseWordsRequest validates the query against the configured defaults.
func (a *WordsAPI) parseWordsRequest(q url.Values) (*wordsRequest, error) {
	gen := a.config.Generation
	req := &wordsRequest{
		mode:   q.Get("mode"),
		opts:   gen.Options,
		length: lengthRange{Min: 5, Max: 12},
		count:  defaultAPICount,
		prefix: q.Get("prefix"),
		suffix: q.Get("suffix"),
		novel:  gen.Novel,
	}
	if req.mode == "" {
		req.mode = modeMarkov
	}
	if req.mode != modeMarkov && req.mode != modeSyllable {
		return nil, fmt.Errorf("mode must be %q or %q", modeMarkov, modeSyllable)
	}
	if v := q.Get("source"); v != "" {
		req.opts.Source = v
	}
	// Local files are only readable from the command line, and URLs only
	// when the server opts in.
	if src, err := corpus.Resolve(req.opts.Source); err == nil {
		switch {
		case src.Kind == corpus.KindFile:
			return nil, errors.New("file sources are not available over HTTP")
		case src.Kind == corpus.KindURL && !a.config.Server.RemoteSources:
			return nil, errors.New("URL sources are disabled on this server")
		}
	}

	var err error
	if req.opts.Order, err = intParam(q, "order", req.opts.Order); err != nil {
		return nil, err
	}
	if req.opts.Order > a.config.Server.MaxOrder {
		return nil, fmt.Errorf("order must be at most %d", a.config.Server.MaxOrder)
	}
	if v := q.Get("cutoff"); v != "" {
		if req.opts.Cutoff, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, errors.New("cutoff must be a number")
		}
	}
	if req.length.Min, err = intParam(q, "min", req.length.Min); err != nil {
		return nil, err
	}
	if req.length.Max, err = intParam(q, "max", req.length.Max); err != nil {
		return nil, err
	}
	if err = markov.ValidateLengthRange(req.length.Min, req.length.Max); err != nil {
		return nil, err
	}
	if req.length.Max > a.config.Server.MaxLength {
		return nil, fmt.Errorf("max must be at most %d", a.config.Server.MaxLength)
	}
	if req.count, err = intParam(q, "count", req.count); err != nil {
		return nil, err
	}
	if req.count < 1 || req.count > a.config.Server.MaxCount {
		return nil, fmt.Errorf("count must be between 1 and %d", a.config.Server.MaxCount)
	}
	if v := q.Get("seed"); v != "" {
		if req.seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, errors.New("seed must be an unsigned integer")
		}
	} else {
		req.seed = newRNG(0, false).Uint64()
	}
	if v := q.Get("novel"); v != "" {
		if req.novel, err = strconv.ParseBool(v); err != nil {
			return nil, errors.New("novel must be a boolean")
		}
	}
	if req.prefix != "" && req.suffix != "" {
		return nil, errors.New("prefix and suffix are mutually exclusive")
	}
	if req.mode == modeSyllable && (req.prefix != "" || req.suffix != "") {
		return nil, errors.New("prefix and suffix need mode=markov")
	}
	req.opts.Reversed = req.suffix != ""
	if req.mode == modeMarkov {
		if err = req.opts.Validate(); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// handleWords handles GET /api/words.
func (a *WordsAPI) handleWords(w http.ResponseWriter, r *http.Request) {
	req, err := a.parseWordsRequest(r.URL.Query())
	if err != nil {
		recordFailure("invalid")
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rng := newRNG(req.seed, true)
	var src wordSource
	if req.mode == modeSyllable {
		src = syllableSource{gen: a.syllable, length: req.length}
	} else {
		src, err = a.markovSource(r.Context(), req)
		if err != nil {
			a.respondWithGenerationError(w, r, err)
			return
		}
	}

	words, err := src.Batch(r.Context(), req.count, rng)
	if err != nil {
		a.respondWithGenerationError(w, r, err)
		return
	}

	resp := WordsResponse{
		Words: words,
		Mode:  req.mode,
		Min:   req.length.Min,
		Max:   req.length.Max,
		Seed:  req.seed,
	}
	if req.mode == modeMarkov {
		resp.Source = req.opts.Source
		resp.Order = req.opts.Order
		resp.Cutoff = req.opts.Cutoff
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (a *WordsAPI) markovSource(ctx context.Context, req *wordsRequest) (markovSource, error) {
	g, err := a.service.Generator(ctx, req.opts)
	if err != nil {
		return markovSource{}, err
	}
	opts := []markov.GenerateOption{
		markov.WithLengthRange(req.length.Min, req.length.Max),
		markov.WithMaxAttempts(a.config.Generation.MaxAttempts),
		markov.WithWorkers(a.config.Generation.Workers),
	}
	if req.prefix != "" {
		opts = append(opts, markov.WithPrefix(req.prefix))
	}
	if req.suffix != "" {
		opts = append(opts, markov.WithSuffix(req.suffix))
	}
	if req.novel {
		words, err := a.service.Words(ctx, req.opts.Source)
		if err != nil {
			return markovSource{}, err
		}
		opts = append(opts, markov.WithReject(wordagen.RejectKnown(words)))
	}
	return markovSource{gen: g, opts: opts}, nil
}

// streamLine is one line of a /api/words/stream response.
type streamLine struct {
	Word  string `json:"word,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleWordsStream handles GET /api/words/stream, writing one JSON object per
// line as each word is generated. The words match /api/words for the same
// query and seed. A failure after the first word ends the stream with an
// error line.
func (a *WordsAPI) handleWordsStream(w http.ResponseWriter, r *http.Request) {
	req, err := a.parseWordsRequest(r.URL.Query())
	if err == nil && req.mode != modeMarkov {
		err = errors.New("streaming needs mode=markov")
	}
	if err != nil {
		recordFailure("invalid")
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	src, err := a.markovSource(r.Context(), req)
	if err != nil {
		a.respondWithGenerationError(w, r, err)
		return
	}
	stream, err := src.gen.GenerateStream(r.Context(), req.count, newRNG(req.seed, true), src.opts...)
	if err != nil {
		a.respondWithGenerationError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for res := range stream {
		line := streamLine{Word: res.Word}
		if res.Err != nil {
			recordGenerationError(res.Err)
			line = streamLine{Error: res.Err.Error()}
		} else {
			recordWords(modeMarkov, 1)
		}
		if err := enc.Encode(line); err != nil {
			a.logger.Debug("Stream client went away", "error", err)
			return
		}
		_ = rc.Flush()
	}
}

// respondWithGenerationError maps a model or generation failure to a status code.
func (a *WordsAPI) respondWithGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case wordagen.IsConfigError(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, markov.ErrGenerationExhausted):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, markov.ErrEmptyCorpus),
		errors.Is(err, corpus.ErrUnsafeURL),
		errors.Is(err, corpus.ErrTooLarge),
		errors.Is(err, corpus.ErrEmptyDownload),
		errors.Is(err, corpus.ErrContentType):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		a.logger.Error("Failed to generate words", "path", r.URL.Path, "query", r.URL.RawQuery, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate words: %v", err))
	}
}

// ModelInfo describes a model in /api/models.
type ModelInfo struct {
	Key       string            `json:"key"`
	Source    string            `json:"source"`
	Order     int               `json:"order"`
	Cutoff    float64           `json:"cutoff"`
	Reversed  bool              `json:"reversed"`
	Loaded    bool              `json:"loaded"`
	Cached    bool              `json:"cached"`
	CreatedAt *time.Time        `json:"created_at,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Stats     markov.ModelStats `json:"stats"`
}

// handleModels handles GET /api/models, merging loaded models with cache entries.
func (a *WordsAPI) handleModels(w http.ResponseWriter, r *http.Request) {
	infos := make(map[modelcache.Key]*ModelInfo)
	info := func(key modelcache.Key) *ModelInfo {
		mi, ok := infos[key]
		if !ok {
			mi = &ModelInfo{Key: key.String(), Source: key.Source, Order: key.Order, Cutoff: key.Cutoff, Reversed: key.Reversed}
			infos[key] = mi
		}
		return mi
	}

	if a.backend != nil {
		entries, err := a.backend.List(r.Context(), "*")
		if err != nil {
			a.logger.Error("Failed to list cached models", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list cached models: %v", err))
			return
		}
		for _, e := range entries {
			mi := info(e.Key)
			mi.Cached = true
			createdAt := e.CreatedAt
			mi.CreatedAt = &createdAt
			mi.Size = e.Size
			mi.Stats = e.Stats
		}
	}

	for _, key := range a.service.Models() {
		opts := wordagen.Options{Source: key.Source, Order: key.Order, Cutoff: key.Cutoff, Reversed: key.Reversed}
		model, err := a.service.Model(r.Context(), opts)
		if err != nil {
			continue
		}
		mi := info(key)
		mi.Loaded = true
		mi.Stats = model.Stats()
	}

	list := make([]*ModelInfo, 0, len(infos))
	for _, mi := range infos {
		list = append(list, mi)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	respondWithJSON(w, http.StatusOK, list)
}

// handleSources handles GET /api/sources.
func (a *WordsAPI) handleSources(w http.ResponseWriter, r *http.Request) {
	type source struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	names := corpus.SourceNames()
	list := make([]source, 0, len(names))
	for _, name := range names {
		list = append(list, source{Name: name, URL: corpus.Sources[name]})
	}
	respondWithJSON(w, http.StatusOK, list)
}

// handleVersion handles GET /api/version.
func (a *WordsAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, currentVersion())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
