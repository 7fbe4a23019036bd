package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"heicconv/logger"
)

// recordingCodec prefixes its input instead of encoding and fails on the
// payload named in failOn.
type recordingCodec struct {
	mu        sync.Mutex
	name      string
	failOn    string
	inputs    []string
	qualities []int
}

func (r *recordingCodec) Name() string {
	if r.name == "" {
		return "recording"
	}
	return r.name
}

func (r *recordingCodec) Available() bool { return true }

func (r *recordingCodec) Encode(src []byte, quality int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inputs = append(r.inputs, string(src))
	r.qualities = append(r.qualities, quality)

	if r.failOn != "" && string(src) == r.failOn {
		return nil, errors.New("corrupt image")
	}
	return append([]byte("HEIC:"), src...), nil
}

func (r *recordingCodec) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole() (*logger.Console, *lockedBuffer) {
	out := &lockedBuffer{}
	console := logger.NewConsole(&logger.RichLoggerOptions{
		Output: out,
		Level:  slog.LevelDebug,
	})
	console.Animated = false
	return console, out
}

func newTestProcessor(c *recordingCodec, quality, workers int) (*Processor, *lockedBuffer) {
	console, out := newTestConsole()
	return &Processor{
		Codec:   c,
		Console: console,
		Quality: quality,
		Workers: workers,
	}, out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// listTree returns every regular file under root, relative and sorted.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(files)
	return files
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/photos/a.jpg", "/photos/a.heic"},
		{"/photos/b.PNG", "/photos/b.heic"},
		{"/photos/sub/c.jpeg", "/photos/sub/c.heic"},
		{"archive.tar.jpg", "archive.tar.heic"},
		{"dir.v1/noext", "dir.v1/noext.heic"},
		{"/d/.png", "/d/.png.heic"},
		{"/d/..png", "/d/..png.heic"},
		{"/d/.hidden.jpg", "/d/.hidden.heic"},
	}

	for _, tt := range tests {
		if got := OutputPath(tt.in); got != tt.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("x/y.JPEG", 73)
	if job.InputPath != "x/y.JPEG" || job.OutputPath != "x/y.heic" || job.Quality != 73 {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestProcessDirectoryExample(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "jpeg-a")
	writeFile(t, filepath.Join(root, "b.PNG"), "png-b")
	writeFile(t, filepath.Join(root, "notes.txt"), "notes")
	writeFile(t, filepath.Join(root, "sub", "c.jpeg"), "jpeg-c")

	c := &recordingCodec{}
	p, out := newTestProcessor(c, 50, 1)

	if err := p.ProcessPath(context.Background(), root); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []string{
		"a.heic", "a.jpg", "b.PNG", "b.heic", "notes.txt", "sub/c.heic", "sub/c.jpeg",
	}
	if got := listTree(t, root); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("tree = %v, want %v", got, want)
	}

	if got := readFile(t, filepath.Join(root, "a.heic")); got != "HEIC:jpeg-a" {
		t.Errorf("a.heic = %q", got)
	}
	if got := readFile(t, filepath.Join(root, "a.jpg")); got != "jpeg-a" {
		t.Errorf("source modified: %q", got)
	}
	if got := readFile(t, filepath.Join(root, "notes.txt")); got != "notes" {
		t.Errorf("notes.txt modified: %q", got)
	}
	if c.calls() != 3 {
		t.Errorf("codec called %d times, want 3", c.calls())
	}

	if !strings.Contains(out.String(), "Converted: "+filepath.Join(root, "a.jpg")+" -> "+filepath.Join(root, "a.heic")) {
		t.Errorf("missing progress line in output:\n%s", out.String())
	}
}

func TestProcessDirectoryPassesQualityThrough(t *testing.T) {
	for _, quality := range []int{1, 37, 100} {
		t.Run(fmt.Sprint(quality), func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "a.jpg"), "a")
			writeFile(t, filepath.Join(root, "deep", "er", "b.png"), "b")

			c := &recordingCodec{}
			p, _ := newTestProcessor(c, quality, 1)
			if err := p.ProcessDirectory(context.Background(), root); err != nil {
				t.Fatalf("process: %v", err)
			}

			for _, q := range c.qualities {
				if q != quality {
					t.Errorf("codec got quality %d, want %d", q, quality)
				}
			}
			if !exists(filepath.Join(root, "deep", "er", "b.heic")) {
				t.Error("nested output missing")
			}
		})
	}
}

func TestDotfilesDoNotShareAnOutput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".png"), "png")
	writeFile(t, filepath.Join(root, ".jpg"), "jpg")

	c := &recordingCodec{}
	p, _ := newTestProcessor(c, 50, 1)
	if err := p.ProcessDirectory(context.Background(), root); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := readFile(t, filepath.Join(root, ".png.heic")); got != "HEIC:png" {
		t.Errorf(".png.heic = %q", got)
	}
	if got := readFile(t, filepath.Join(root, ".jpg.heic")); got != "HEIC:jpg" {
		t.Errorf(".jpg.heic = %q", got)
	}
	if exists(filepath.Join(root, ".heic")) {
		t.Error(".heic written")
	}
}

func TestProcessDirectoryFollowsFileSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "real.jpg")
	writeFile(t, target, "linked")
	writeFile(t, filepath.Join(outside, "nested", "deep.png"), "deep")

	if err := os.Symlink(target, filepath.Join(root, "link.jpg")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "gone.png"), filepath.Join(root, "dangling.png")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "nested"), filepath.Join(root, "dir.png")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	c := &recordingCodec{}
	p, _ := newTestProcessor(c, 50, 1)
	if err := p.ProcessDirectory(context.Background(), root); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "link.heic")); got != "HEIC:linked" {
		t.Errorf("link.heic = %q", got)
	}
	if c.calls() != 1 {
		t.Errorf("codec called %d times, want 1", c.calls())
	}
	if exists(filepath.Join(outside, "nested", "deep.heic")) {
		t.Error("walk descended into a linked directory")
	}
}

func TestProcessDirectoryWithoutImages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "readme.md"), "x")

	c := &recordingCodec{}
	p, out := newTestProcessor(c, 50, 1)
	if err := p.ProcessDirectory(context.Background(), root); err != nil {
		t.Fatalf("process: %v", err)
	}
	if c.calls() != 0 {
		t.Errorf("codec called %d times", c.calls())
	}
	if !strings.Contains(out.String(), "No images found") {
		t.Errorf("missing warning:\n%s", out.String())
	}
}

func TestFailFastAbortsRemainingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "corrupt")
	writeFile(t, filepath.Join(root, "b.jpg"), "b")
	writeFile(t, filepath.Join(root, "c.png"), "c")

	c := &recordingCodec{failOn: "corrupt"}
	p, _ := newTestProcessor(c, 50, 1)

	err := p.ProcessPath(context.Background(), root)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "a.jpg") {
		t.Errorf("error does not name the file: %v", err)
	}

	if c.calls() != 1 {
		t.Errorf("codec called %d times after failure, want 1", c.calls())
	}

	want := []string{"a.jpg", "b.jpg", "c.png"}
	if got := listTree(t, root); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tree = %v, want %v", got, want)
	}
}

func TestKeepGoingIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "corrupt")
	writeFile(t, filepath.Join(root, "b.jpg"), "b")
	writeFile(t, filepath.Join(root, "c.png"), "c")

	c := &recordingCodec{failOn: "corrupt"}
	p, out := newTestProcessor(c, 50, 1)
	p.KeepGoing = true

	err := p.ProcessDirectory(context.Background(), root)
	if err == nil || !strings.Contains(err.Error(), "1 of 3") {
		t.Fatalf("expected 1 of 3 failure, got %v", err)
	}

	for _, name := range []string{"b.heic", "c.heic"} {
		if !exists(filepath.Join(root, name)) {
			t.Errorf("%s missing", name)
		}
	}
	if exists(filepath.Join(root, "a.heic")) {
		t.Error("failed file produced output")
	}
	if !strings.Contains(out.String(), "corrupt image") {
		t.Errorf("failure not logged:\n%s", out.String())
	}
}

func TestParallelConvertsEveryFile(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i%3), fmt.Sprintf("img%02d.jpg", i)), fmt.Sprint(i))
	}
	writeFile(t, filepath.Join(root, "skip.gif"), "gif")

	c := &recordingCodec{}
	p, _ := newTestProcessor(c, 60, 4)

	if err := p.ProcessDirectory(context.Background(), root); err != nil {
		t.Fatalf("process: %v", err)
	}
	if c.calls() != 20 {
		t.Errorf("codec called %d times, want 20", c.calls())
	}
	for i := 0; i < 20; i++ {
		path := filepath.Join(root, fmt.Sprintf("d%d", i%3), fmt.Sprintf("img%02d.heic", i))
		if got := readFile(t, path); got != "HEIC:"+fmt.Sprint(i) {
			t.Errorf("%s = %q", path, got)
		}
	}
	if exists(filepath.Join(root, "skip.heic")) {
		t.Error("gif was converted")
	}
}

func TestParallelFailFastReturnsError(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("img%02d.png", i)), fmt.Sprint(i))
	}
	writeFile(t, filepath.Join(root, "img00.png"), "corrupt")

	c := &recordingCodec{failOn: "corrupt"}
	p, _ := newTestProcessor(c, 50, 2)

	err := p.ProcessDirectory(context.Background(), root)
	if err == nil || !strings.Contains(err.Error(), "corrupt image") {
		t.Fatalf("expected codec error, got %v", err)
	}
	if exists(filepath.Join(root, "img00.heic")) {
		t.Error("failed file produced output")
	}
}

func TestProcessDirectoryHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &recordingCodec{}
	p, _ := newTestProcessor(c, 50, 1)
	if err := p.ProcessDirectory(ctx, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.calls() != 0 {
		t.Errorf("codec called %d times", c.calls())
	}
}

func TestProcessPathNotFound(t *testing.T) {
	root := t.TempDir()

	c := &recordingCodec{}
	p, out := newTestProcessor(c, 50, 1)

	if err := p.ProcessPath(context.Background(), `"`+filepath.Join(root, "missing")+`"`); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := listTree(t, root); len(got) != 0 {
		t.Errorf("unexpected writes: %v", got)
	}
	if !strings.Contains(out.String(), "does not exist") {
		t.Errorf("missing message:\n%s", out.String())
	}
}

func TestProcessSingleFileIgnoresExtensionFilter(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "scan.bmp")
	writeFile(t, src, "bmp")

	c := &recordingCodec{}
	p, out := newTestProcessor(c, 50, 1)

	if err := p.ProcessPath(context.Background(), `"`+src+`"`); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "scan.heic")); got != "HEIC:bmp" {
		t.Errorf("scan.heic = %q", got)
	}
	if !strings.Contains(out.String(), "Converted: "+src) {
		t.Errorf("missing progress line:\n%s", out.String())
	}
}

func TestConvertFileOverwritesOutput(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jpg")
	writeFile(t, src, "fresh")
	writeFile(t, filepath.Join(root, "a.heic"), "stale")

	p, _ := newTestProcessor(&recordingCodec{}, 50, 1)
	res := p.ConvertFile(NewJob(src, 50))
	if res.Err != nil {
		t.Fatalf("convert: %v", res.Err)
	}

	if got := readFile(t, filepath.Join(root, "a.heic")); got != "HEIC:fresh" {
		t.Errorf("a.heic = %q", got)
	}
	if res.OriginalSize != 5 || res.ConvertedSize != 10 {
		t.Errorf("sizes = %d/%d", res.OriginalSize, res.ConvertedSize)
	}

	info, err := os.Stat(filepath.Join(root, "a.heic"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
}

func TestConvertFileFailureLeavesNoOutput(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.png")
	writeFile(t, src, "corrupt")

	p, _ := newTestProcessor(&recordingCodec{failOn: "corrupt"}, 50, 1)
	res := p.ConvertFile(NewJob(src, 50))
	if res.Err == nil {
		t.Fatal("expected error")
	}

	want := []string{"a.png"}
	if got := listTree(t, root); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tree = %v, want %v", got, want)
	}
}

func TestConvertFileMissingInput(t *testing.T) {
	p, _ := newTestProcessor(&recordingCodec{}, 50, 1)
	res := p.ConvertFile(NewJob(filepath.Join(t.TempDir(), "gone.jpg"), 50))
	if !errors.Is(res.Err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", res.Err)
	}
}
