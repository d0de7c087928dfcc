package facecorpus

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/esimov/facecorpus/utils"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brightnessDetector reports the central region of bright images and no face on dark ones.
type brightnessDetector struct{}

func (brightnessDetector) Detect(ctx context.Context, img *image.NRGBA) ([]Detection, error) {
	b := img.Bounds()
	r, _, _, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	if r>>8 < 128 {
		return nil, nil
	}
	return []Detection{{Box: BoundingBox{X: b.Dx() / 4, Y: b.Dy() / 4, Width: b.Dx() / 2, Height: b.Dy() / 2}, Score: 1}}, nil
}

func writeJPEG(t *testing.T, path string, c color.Color) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	img := imaging.New(64, 48, c)
	require.NoError(t, imaging.Save(img, path))
}

var (
	bright = color.NRGBA{R: 230, G: 200, B: 180, A: 255}
	dark   = color.NRGBA{R: 10, G: 10, B: 10, A: 255}
)

func newTestPipeline() *Pipeline {
	return &Pipeline{Cropper: NewCropper(brightnessDetector{}), Workers: 2}
}

func TestPipeline_BatchResilience(t *testing.T) {
	imgDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "cropped")

	writeJPEG(t, filepath.Join(imgDir, "n000001", "0001_01.jpg"), bright)
	writeJPEG(t, filepath.Join(imgDir, "n000001", "0002_01.jpg"), dark)
	writeJPEG(t, filepath.Join(imgDir, "n000002", "0001_01.jpg"), bright)

	outcomes, err := newTestPipeline().Run(context.Background(), imgDir, outDir)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	var sources []string
	for _, o := range outcomes {
		sources = append(sources, o.Path)
	}
	sort.Strings(sources)
	assert.Equal(t, []string{
		filepath.Join(imgDir, "n000001", "0001_01.jpg"),
		filepath.Join(imgDir, "n000001", "0002_01.jpg"),
		filepath.Join(imgDir, "n000002", "0001_01.jpg"),
	}, sources)

	s := Summarize(outcomes)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed[ReasonNoFace])
	assert.True(t, s.Bytes > 0)

	for _, o := range outcomes {
		want := filepath.Join(outDir, o.Key.PersonID, o.Key.ImageID+".jpg")
		assert.Equal(t, want, o.Dest)

		if !o.OK() {
			assert.True(t, errors.Is(o.Err, ErrNoFaceDetected))
			assert.NoFileExists(t, o.Dest)
			continue
		}

		img, err := imaging.Open(o.Dest)
		require.NoError(t, err)
		assert.Equal(t, DefaultCropSize, img.Bounds().Dx())
		assert.Equal(t, DefaultCropSize, img.Bounds().Dy())

		key, ok := ResolveKey(o.Dest)
		assert.True(t, ok)
		assert.Equal(t, o.Key, key)
	}

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Join(outDir, "n000001"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPipeline_TrailingSeparator(t *testing.T) {
	imgDir := t.TempDir()
	writeJPEG(t, filepath.Join(imgDir, "p", "i.jpg"), bright)
	outDir := filepath.Join(t.TempDir(), "out")

	outcomes, err := newTestPipeline().Run(context.Background(), imgDir, outDir+string(os.PathSeparator))
	assert.Nil(t, outcomes)

	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe))
	assert.NoDirExists(t, outDir)

	_, err = newTestPipeline().Run(context.Background(), imgDir, "")
	assert.True(t, errors.As(err, &pe))
}

func TestPipeline_EmptyDiscovery(t *testing.T) {
	imgDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "notes.txt"), []byte("x"), 0644))

	_, err := newTestPipeline().Run(context.Background(), imgDir, filepath.Join(t.TempDir(), "out"))

	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe))

	_, err = newTestPipeline().Run(context.Background(), filepath.Join(imgDir, "missing"), filepath.Join(t.TempDir(), "out"))
	assert.True(t, errors.As(err, &pe))
}

func TestPipeline_UnreadableImage(t *testing.T) {
	imgDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	writeJPEG(t, filepath.Join(imgDir, "p", "ok.jpg"), bright)
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "p", "broken.jpg"), []byte("this is not an image at all"), 0644))

	outcomes, err := newTestPipeline().Run(context.Background(), imgDir, outDir)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	s := Summarize(outcomes)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed[ReasonIO])
}

func TestPipeline_MalformedKey(t *testing.T) {
	p := newTestPipeline()
	claimed := &destinations{paths: make(map[string]string)}

	o := p.process(context.Background(), "0001_01.jpg", t.TempDir(), claimed)

	assert.False(t, o.OK())
	assert.Equal(t, ReasonMalformedKey, o.Reason)
	assert.True(t, o.Key.IsZero())
}

func TestPipeline_SkippedImageIsLoggedOnce(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	SetLogger(logger)
	t.Cleanup(func() { SetLogger(logrus.StandardLogger()) })

	claimed := &destinations{paths: make(map[string]string)}
	newTestPipeline().process(context.Background(), "0001_01.jpg", t.TempDir(), claimed)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "0001_01.jpg")
}

func TestPipeline_DuplicateDestination(t *testing.T) {
	imgDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	writeJPEG(t, filepath.Join(imgDir, "a", "p", "i.jpg"), bright)
	writeJPEG(t, filepath.Join(imgDir, "b", "p", "i.jpg"), bright)

	outcomes, err := newTestPipeline().Run(context.Background(), imgDir, outDir)
	require.NoError(t, err)

	s := Summarize(outcomes)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed[ReasonDuplicate])

	for _, o := range outcomes {
		if o.Reason == ReasonDuplicate {
			assert.Contains(t, o.Err.Error(), "already claimed by")
		}
	}
}

func TestPipeline_FailedSourceLeavesDestinationFree(t *testing.T) {
	imgDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	writeJPEG(t, filepath.Join(imgDir, "a", "p", "i.jpg"), dark)
	writeJPEG(t, filepath.Join(imgDir, "b", "p", "i.jpg"), bright)

	outcomes, err := newTestPipeline().Run(context.Background(), imgDir, outDir)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, ReasonNoFace, outcomes[0].Reason)
	assert.True(t, outcomes[1].OK(), "unexpected outcome: %v", outcomes[1].Err)
	assert.FileExists(t, filepath.Join(outDir, "p", "i.jpg"))
}

func TestPipeline_RelativeImageDir(t *testing.T) {
	imgDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	writeJPEG(t, filepath.Join(imgDir, "n000001", "0001_01.jpg"), bright)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(imgDir))
	t.Cleanup(func() { os.Chdir(wd) })

	outcomes, err := newTestPipeline().Run(context.Background(), ".", outDir)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	require.True(t, o.OK(), "unexpected outcome: %v", o.Err)
	assert.True(t, filepath.IsAbs(o.Path))
	assert.Equal(t, ImageKey{PersonID: "n000001", ImageID: "0001_01"}, o.Key)
	assert.FileExists(t, filepath.Join(outDir, "n000001", "0001_01.jpg"))
}

func TestPipeline_WorkerCount(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		images  int
		want    int
	}{
		{name: "as configured", workers: 4, images: 100, want: 4},
		{name: "bounded by images", workers: 8, images: 3, want: 3},
		{name: "bounded by max workers", workers: 64, images: 100, want: maxWorkers},
		{name: "default", workers: 0, images: 1000, want: utils.Min(runtime.NumCPU(), maxWorkers)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Pipeline{Workers: tt.workers}
			assert.Equal(t, tt.want, p.workerCount(tt.images))
		})
	}
}

func TestPipeline_Canceled(t *testing.T) {
	imgDir := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		writeJPEG(t, filepath.Join(imgDir, "p", name+".jpg"), bright)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := newTestPipeline().Run(ctx, imgDir, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	for _, o := range outcomes {
		assert.Equal(t, ReasonCanceled, o.Reason)
		assert.NotEmpty(t, o.Path)
	}
}

func TestPipeline_Progress(t *testing.T) {
	imgDir := t.TempDir()
	writeJPEG(t, filepath.Join(imgDir, "p", "a.jpg"), bright)
	writeJPEG(t, filepath.Join(imgDir, "p", "b.jpg"), dark)

	var seen []string
	p := newTestPipeline()
	p.Progress = func(o Outcome) { seen = append(seen, o.Path) }

	outcomes, err := p.Run(context.Background(), imgDir, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	assert.Len(t, seen, len(outcomes))
}

func TestPipeline_Discover(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "p2", "b.jpg"), bright)
	writeJPEG(t, filepath.Join(root, "p1", "a.jpg"), bright)
	writeJPEG(t, filepath.Join(root, "deep", "er", "p3", "c.jpg"), bright)
	writeJPEG(t, filepath.Join(root, ".cache", "p", "x.jpg"), bright)
	writeJPEG(t, filepath.Join(root, "p1", ".hidden.jpg"), bright)
	require.NoError(t, os.WriteFile(filepath.Join(root, "p1", "a.png"), []byte("x"), 0644))

	paths, err := Discover(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "deep", "er", "p3", "c.jpg"),
		filepath.Join(root, "p1", "a.jpg"),
		filepath.Join(root, "p2", "b.jpg"),
	}, paths)
}

func TestPipeline_EnsureDirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "n000001")

	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- EnsureDir(filepath.Join(dir, "nested"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.DirExists(t, dir)
}

func TestPipeline_WriteReport(t *testing.T) {
	outcomes := []Outcome{
		{Path: "/in/p/a.jpg", Key: ImageKey{"p", "a"}, Dest: "/out/p/a.jpg", Size: 10},
		{Path: "/in/p/b.jpg", Key: ImageKey{"p", "b"}, Dest: "/out/p/b.jpg", Reason: ReasonNoFace, Err: ErrNoFaceDetected},
		{Path: "b.jpg", Reason: ReasonMalformedKey, Err: &PathError{Path: "b.jpg"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, outcomes))

	out := buf.String()
	assert.Contains(t, out, "dest: /out/p/a.jpg")
	assert.Contains(t, out, "status: no face detected")
	assert.NotContains(t, out, "dest: /out/p/b.jpg")
	assert.Equal(t, 3, strings.Count(out, "- path:"))
}
