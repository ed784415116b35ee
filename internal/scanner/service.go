// Package scanner walks the configured library roots, extracts tag metadata
// and feeds the results to the library importer.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.senan.xyz/taglib"

	"starlight/internal/library"
)

const EventProgress = "scanner:progress"

var trackPrefixPattern = regexp.MustCompile(`^\s*(\d{1,2})[\s._-]+(.+)$`)

var leadingIntegerPattern = regexp.MustCompile(`\d+`)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var genreSeparatorPattern = regexp.MustCompile(`\s*[;,/]\s*`)

var supportedExtensions = map[string]struct{}{
	".aac":  {},
	".aif":  {},
	".aiff": {},
	".alac": {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
	".wma":  {},
}

type Progress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
	At      string `json:"at"`
}

type Status struct {
	Running       bool   `json:"running"`
	LastRunAt     string `json:"lastRunAt"`
	LastError     string `json:"lastError,omitempty"`
	LastFilesSeen int    `json:"lastFilesSeen"`
	LastAdded     int    `json:"lastAdded"`
	LastSkipped   int    `json:"lastSkipped"`
}

type Emitter func(eventName string, payload any)

type Service struct {
	mu            sync.Mutex
	running       bool
	lastRun       time.Time
	lastError     string
	lastFilesSeen int
	lastAdded     int
	lastSkipped   int
	emit          Emitter
	roots         []string
	library       *library.Service
	logger        *log.Logger
}

func NewService(roots []string, libraryService *library.Service, logger *log.Logger) *Service {
	return &Service{
		roots:   roots,
		library: libraryService,
		logger:  logger,
	}
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:       s.running,
		LastError:     s.lastError,
		LastFilesSeen: s.lastFilesSeen,
		LastAdded:     s.lastAdded,
		LastSkipped:   s.lastSkipped,
	}
	if !s.lastRun.IsZero() {
		status.LastRunAt = s.lastRun.UTC().Format(time.RFC3339)
	}

	return status
}

// TriggerFullScan starts a scan in the background; a second trigger while one
// runs is rejected.
func (s *Service) TriggerFullScan() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scan already in progress")
	}
	s.running = true
	s.lastError = ""
	s.mu.Unlock()

	go s.runFullScan(context.Background())
	return nil
}

// Scan walks all roots synchronously and imports what it finds.
func (s *Service) Scan(ctx context.Context) (library.Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return library.Summary{}, errors.New("scan already in progress")
	}
	s.running = true
	s.lastError = ""
	s.mu.Unlock()

	summary, filesSeen, err := s.performScan(ctx)

	s.mu.Lock()
	s.running = false
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastRun = time.Now().UTC()
		s.lastFilesSeen = filesSeen
		s.lastAdded = summary.Added
		s.lastSkipped = summary.Skipped
	}
	s.mu.Unlock()

	return summary, err
}

func (s *Service) runFullScan(ctx context.Context) {
	summary, err := s.Scan(ctx)
	if err != nil {
		s.emitProgress(Progress{
			Phase:   "failed",
			Message: err.Error(),
			Percent: 100,
			Status:  "failed",
			At:      time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	s.emitProgress(Progress{
		Phase: "done",
		Message: fmt.Sprintf(
			"Scan complete: %d added, %d skipped of %d files",
			summary.Added,
			summary.Skipped,
			summary.Total,
		),
		Percent: 100,
		Status:  "completed",
		At:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) performScan(ctx context.Context) (library.Summary, int, error) {
	s.emitProgress(Progress{
		Phase:   "start",
		Message: "Starting full scan",
		Percent: 5,
		Status:  "running",
		At:      time.Now().UTC().Format(time.RFC3339),
	})

	if len(s.roots) == 0 {
		s.emitProgress(Progress{
			Phase:   "done",
			Message: "No library folders configured",
			Percent: 100,
			Status:  "completed",
			At:      time.Now().UTC().Format(time.RFC3339),
		})
		return library.Summary{}, 0, nil
	}

	records := make([]library.ImportRecord, 0)
	for i, root := range s.roots {
		progress := 10 + ((i * 70) / len(s.roots))
		s.emitProgress(Progress{
			Phase:   "scan",
			Message: fmt.Sprintf("Scanning %s", root),
			Percent: progress,
			Status:  "running",
			At:      time.Now().UTC().Format(time.RFC3339),
		})

		rootRecords, err := s.collectRoot(ctx, root)
		if err != nil {
			return library.Summary{}, 0, err
		}
		records = append(records, rootRecords...)
	}

	s.emitProgress(Progress{
		Phase:   "import",
		Message: fmt.Sprintf("Importing %d files", len(records)),
		Percent: 85,
		Status:  "running",
		At:      time.Now().UTC().Format(time.RFC3339),
	})

	summary, err := s.library.Import(ctx, records)
	if err != nil {
		return summary, len(records), err
	}

	return summary, len(records), nil
}

func (s *Service) collectRoot(ctx context.Context, root string) ([]library.ImportRecord, error) {
	records := make([]library.ImportRecord, 0)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.logger.Warn("skipping unreadable path", "path", path, "err", walkErr)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		extension := strings.ToLower(filepath.Ext(path))
		if _, ok := supportedExtensions[extension]; !ok {
			return nil
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			s.logger.Warn("skipping unreadable file", "path", path, "err", infoErr)
			return nil
		}

		records = append(records, extractRecord(root, filepath.Clean(path), info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk root %s: %w", root, err)
	}

	return records, nil
}

// extractRecord reads tags from the file, falling back to the file name and
// directory layout when the file carries none.
func extractRecord(rootPath string, fullPath string, info fs.FileInfo) library.ImportRecord {
	record := fallbackRecord(rootPath, fullPath)
	record.FileURI = fullPath
	record.FileName = filepath.Base(fullPath)
	record.FileSize = info.Size()
	record.FileMtime = info.ModTime().UnixMilli()

	tags, tagsErr := taglib.ReadTags(fullPath)
	if tagsErr == nil {
		applyTagValues(&record, tags)
	}

	properties, propertiesErr := taglib.ReadProperties(fullPath)
	if propertiesErr == nil {
		if properties.Length > 0 {
			durationMS := int(properties.Length.Milliseconds())
			if durationMS > 0 {
				record.DurationMS = &durationMS
			}
		}
		if properties.SampleRate > 0 {
			sampleRate := int(properties.SampleRate)
			record.SampleRate = &sampleRate
		}
		if properties.Bitrate > 0 {
			bitrate := int(properties.Bitrate)
			record.Bitrate = &bitrate
		}
	}

	return record
}

// fallbackRecord guesses title, artist and album from an artist/album/file
// directory layout.
func fallbackRecord(rootPath string, fullPath string) library.ImportRecord {
	relativePath := filepath.Base(fullPath)
	if rel, err := filepath.Rel(rootPath, fullPath); err == nil {
		relativePath = rel
	}

	relativePath = filepath.ToSlash(relativePath)
	parts := strings.Split(relativePath, "/")
	fileName := parts[len(parts)-1]
	baseName := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	trackNo, title := parseTrackNumber(baseName)
	if title == "" {
		title = baseName
	}

	artist := "Unknown Artist"
	album := "Unknown Album"
	if len(parts) >= 2 && strings.TrimSpace(parts[0]) != "" {
		artist = strings.TrimSpace(parts[0])
	}
	if len(parts) >= 3 && strings.TrimSpace(parts[1]) != "" {
		album = strings.TrimSpace(parts[1])
	}

	return library.ImportRecord{
		Title:      strings.TrimSpace(title),
		ArtistName: artist,
		AlbumTitle: album,
		TrackNo:    trackNo,
	}
}

func applyTagValues(record *library.ImportRecord, tags map[string][]string) {
	if value := firstTagValue(tags, taglib.Title, "TITLE"); value != "" {
		record.Title = value
	}
	if value := firstTagValue(tags, taglib.Artist, "ARTIST"); value != "" {
		record.ArtistName = value
	}
	if value := firstTagValue(tags, taglib.Album, "ALBUM"); value != "" {
		record.AlbumTitle = value
	}
	if value := firstTagValue(tags, taglib.Genre, "GENRE"); value != "" {
		record.Genres = splitGenres(value)
	}

	if trackNo := parseNumericTag(firstTagValue(tags, taglib.TrackNumber, "TRACKNUMBER", "TRCK")); trackNo != nil {
		record.TrackNo = trackNo
	}
	if discNo := parseNumericTag(firstTagValue(tags, taglib.DiscNumber, "DISCNUMBER", "TPOS")); discNo != nil {
		record.DiscNumber = discNo
	}
	if year := parseYearTag(firstTagValue(tags, taglib.Date, "DATE", "YEAR", "ORIGINALDATE", "RELEASEDATE")); year != nil {
		record.Year = year
	}
}

func parseTrackNumber(baseName string) (*int, string) {
	match := trackPrefixPattern.FindStringSubmatch(baseName)
	if len(match) != 3 {
		trimmed := strings.TrimSpace(baseName)
		return nil, trimmed
	}

	number := 0
	for _, ch := range match[1] {
		number = (number * 10) + int(ch-'0')
	}
	if number <= 0 {
		trimmed := strings.TrimSpace(baseName)
		return nil, trimmed
	}

	trimmedTitle := strings.TrimSpace(match[2])
	return &number, trimmedTitle
}

func firstTagValue(tags map[string][]string, keys ...string) string {
	for _, key := range keys {
		values, ok := tags[key]
		if !ok {
			continue
		}
		for _, value := range values {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}

	return ""
}

func parseNumericTag(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	match := leadingIntegerPattern.FindString(trimmed)
	if match == "" {
		return nil
	}

	parsed, err := strconv.Atoi(match)
	if err != nil || parsed <= 0 {
		return nil
	}

	return &parsed
}

func parseYearTag(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	match := yearPattern.FindString(trimmed)
	if match == "" {
		if fallback := parseNumericTag(trimmed); fallback != nil {
			if *fallback >= 1000 && *fallback <= 3000 {
				return fallback
			}
		}
		return nil
	}

	parsed, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}

	return &parsed
}

func splitGenres(value string) []string {
	parts := genreSeparatorPattern.Split(value, -1)
	genres := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			genres = append(genres, trimmed)
		}
	}
	if len(genres) == 0 {
		return nil
	}

	return genres
}

func (s *Service) emitProgress(progress Progress) {
	s.mu.Lock()
	emitter := s.emit
	s.mu.Unlock()

	if emitter != nil {
		emitter(EventProgress, progress)
	}
}
