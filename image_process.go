package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"heicconv/codec"
	"heicconv/logger"
)

var supportedFormats = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Job describes the conversion of one file.
type Job struct {
	InputPath  string
	OutputPath string
	Quality    int
}

func NewJob(inputPath string, quality int) Job {
	return Job{
		InputPath:  inputPath,
		OutputPath: OutputPath(inputPath),
		Quality:    quality,
	}
}

// OutputPath swaps the extension of inputPath for .heic. Leading dots of
// the base name are not an extension, so ".png" becomes ".png.heic".
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	if strings.TrimLeft(filepath.Base(inputPath), ".") == strings.TrimLeft(ext, ".") {
		ext = ""
	}
	return strings.TrimSuffix(inputPath, ext) + codec.Extension
}

func isSupported(name string) bool {
	return supportedFormats[strings.ToLower(filepath.Ext(name))]
}

type Processor struct {
	Codec   codec.Codec
	Console *logger.Console
	Quality int
	Workers int

	// KeepGoing logs a failed file and moves on instead of aborting the
	// batch.
	KeepGoing bool
}

type ProcessStats struct {
	mu                 sync.Mutex
	TotalOriginalSize  int64
	TotalConvertedSize int64
	TotalFiles         int
	ProcessedFiles     int
	SuccessfulFiles    int
	FailedFiles        int
}

func (s *ProcessStats) record(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ProcessedFiles++
	if res.Err != nil {
		s.FailedFiles++
		return
	}
	s.SuccessfulFiles++
	s.TotalOriginalSize += res.OriginalSize
	s.TotalConvertedSize += res.ConvertedSize
}

// Result is the outcome of one Job.
type Result struct {
	Job           Job
	OriginalSize  int64
	ConvertedSize int64
	Err           error
}

func NewProcessor(cfg *Config, c codec.Codec, console *logger.Console) *Processor {
	return &Processor{
		Codec:     c,
		Console:   console,
		Quality:   cfg.Quality,
		Workers:   cfg.Workers,
		KeepGoing: cfg.KeepGoing,
	}
}

// ProcessPath resolves raw and converts the file or every supported image
// below the directory. A path that does not exist is reported and is not
// an error.
func (p *Processor) ProcessPath(ctx context.Context, raw string) error {
	path, kind, err := ResolvePath(raw)
	if err != nil {
		return fmt.Errorf("path validation error: %w", err)
	}

	switch kind {
	case PathFile:
		return p.ProcessSingleFile(ctx, path)
	case PathDirectory:
		return p.ProcessDirectory(ctx, path)
	case PathUnsupported:
		p.Console.Warn("Not a regular file or directory: %s", path)
		return nil
	default:
		p.Console.Warn("The specified path does not exist: %s", path)
		return nil
	}
}

func (p *Processor) ProcessSingleFile(ctx context.Context, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.Console.Info("Processing file: %s", filePath)

	job := NewJob(filePath, p.Quality)
	timer := p.Console.StartTimer("File conversion")
	spinner := p.Console.StartSpinner("Encoding " + filepath.Base(filePath))

	res := p.ConvertFile(job)
	if res.Err != nil {
		spinner.Stop(false, fmt.Sprintf("Failed: %s", filePath))
		return res.Err
	}

	spinner.Stop(true, convertedLine(job))
	timer.End()
	p.Console.Debug("%s", sizeLine(res))
	return nil
}

func (p *Processor) ProcessDirectory(ctx context.Context, dirPath string) error {
	p.Console.Info("Processing directory: %s (codec: %s, quality: %d, workers: %d)",
		dirPath, p.Codec.Name(), p.Quality, p.Workers)

	jobs, err := p.collectJobs(dirPath)
	if err != nil {
		return fmt.Errorf("file collection error: %w", err)
	}

	if len(jobs) == 0 {
		p.Console.Warn("No images found in %s", dirPath)
		return nil
	}

	p.Console.Debug("Found %d images to convert", len(jobs))

	stats := &ProcessStats{TotalFiles: len(jobs)}

	if p.Workers > 1 {
		err = p.processParallel(ctx, jobs, stats)
	} else {
		err = p.processSequential(ctx, jobs, stats)
	}

	p.displayResults(stats)

	if err != nil {
		return err
	}
	if stats.FailedFiles > 0 {
		return fmt.Errorf("%d of %d files failed to convert", stats.FailedFiles, stats.TotalFiles)
	}
	return nil
}

// collectJobs walks dirPath and returns a job for each supported image in
// walk order.
func (p *Processor) collectJobs(dirPath string) ([]Job, error) {
	var jobs []Job

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !isSupported(d.Name()) || !isRegularTarget(path, d) {
			return nil
		}

		jobs = append(jobs, NewJob(path, p.Quality))
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("error while exploring directory: %w", err)
	}

	return jobs, nil
}

// isRegularTarget reports whether d is a regular file or a symlink to one.
// Links to directories are not descended into and dangling links are
// skipped.
func isRegularTarget(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (p *Processor) processSequential(ctx context.Context, jobs []Job, stats *ProcessStats) error {
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := p.ConvertFile(job)
		stats.record(res)
		if err := p.report(res); err != nil {
			return err
		}
	}
	return nil
}

// processParallel runs jobs on a bounded pool. Unless KeepGoing is set the
// first failure cancels the feed; jobs already running are allowed to
// finish.
func (p *Processor) processParallel(ctx context.Context, jobs []Job, stats *ProcessStats) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := p.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan Job, workers*2)
	bar := p.Console.NewProgressBar(int64(len(jobs)), "Converting images")

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if ctx.Err() != nil {
					continue
				}

				res := p.ConvertFile(job)
				stats.record(res)
				bar.Increment(1)

				if err := p.report(res); err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case queue <- job:
			}
		}
	}()

	wg.Wait()
	bar.Complete()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// report logs res and returns the error that should stop the batch, if
// any.
func (p *Processor) report(res Result) error {
	if res.Err == nil {
		p.Console.Success("%s", convertedLine(res.Job))
		p.Console.Debug("%s", sizeLine(res))
		return nil
	}

	if p.KeepGoing {
		p.Console.Error("%v", res.Err)
		return nil
	}
	return res.Err
}

func convertedLine(job Job) string {
	return fmt.Sprintf("Converted: %s -> %s", job.InputPath, job.OutputPath)
}

func sizeLine(res Result) string {
	return fmt.Sprintf("%s: %d KB -> %d KB", filepath.Base(res.Job.InputPath),
		res.OriginalSize/1024, res.ConvertedSize/1024)
}

func (p *Processor) displayResults(stats *ProcessStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	var ratio float64
	if stats.TotalOriginalSize > 0 {
		ratio = float64(stats.TotalConvertedSize) / float64(stats.TotalOriginalSize) * 100
	}

	table := p.Console.NewTable([]string{"Metric", "Value"})
	table.AddRow("Converted files", fmt.Sprintf("%d/%d", stats.SuccessfulFiles, stats.TotalFiles))
	table.AddRow("Failed files", fmt.Sprintf("%d", stats.FailedFiles))
	table.AddRow("Skipped files", fmt.Sprintf("%d", stats.TotalFiles-stats.ProcessedFiles))
	table.AddRow("Original size", fmt.Sprintf("%.2f MB", float64(stats.TotalOriginalSize)/1024/1024))
	table.AddRow("Converted size", fmt.Sprintf("%.2f MB", float64(stats.TotalConvertedSize)/1024/1024))
	table.AddRow("Size ratio", fmt.Sprintf("%.1f%%", ratio))

	p.Console.Info("Processing summary:")
	table.Print()
}

// ConvertFile reads job.InputPath, encodes it with the configured codec and
// replaces job.OutputPath with the result. The input is never modified and
// a failed conversion leaves no output behind.
func (p *Processor) ConvertFile(job Job) (res Result) {
	res.Job = job
	defer func() {
		if res.Err != nil {
			res.Err = fmt.Errorf("convert %s: %w", job.InputPath, res.Err)
		}
	}()

	src, err := readSource(job.InputPath)
	if err != nil {
		res.Err = err
		return res
	}
	res.OriginalSize = int64(len(src))

	out, err := p.Codec.Encode(src, job.Quality)
	if err != nil {
		res.Err = err
		return res
	}

	if err := writeAtomic(job.OutputPath, out); err != nil {
		res.Err = err
		return res
	}
	res.ConvertedSize = int64(len(out))

	return res
}

func readSource(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return data, nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
func writeAtomic(path string, data []byte) (err error) {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".heicconv-*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if err != nil {
			tempFile.Close()
			if rmErr := os.Remove(tempPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
		}
	}()

	if _, err = tempFile.Write(data); err != nil {
		return fmt.Errorf("error writing temporary file: %w", err)
	}
	if err = tempFile.Chmod(0o644); err != nil {
		return fmt.Errorf("error setting permissions: %w", err)
	}
	if err = tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err = os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}
