package facecorpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/esimov/facecorpus/utils"
	"github.com/karrick/godirwalk"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// Pipeline crops the faces of a corpus of images and writes them to a directory tree
// mirroring the <personId>/<imageId>.jpg layout of the source.
type Pipeline struct {
	Cropper *Cropper
	// Workers is the number of images processed concurrently, runtime.NumCPU() if not set.
	Workers int
	// Progress, if set, is called once per image as soon as its outcome is known.
	// Calls are serialized.
	Progress func(Outcome)
}

// destinations tracks the output paths claimed during a run.
type destinations struct {
	mu    sync.Mutex
	paths map[string]string
}

// claim reserves dest for src. It returns the previous owner if dest is already taken.
func (d *destinations) claim(dest, src string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.paths[dest]; ok {
		return owner, false
	}
	d.paths[dest] = src
	return "", true
}

// Run processes every .jpg file found under imgDir and returns one outcome per file,
// in discovery order. Per image failures never abort the run; only the preconditions
// on outDir and the discovery of at least one image are reported as errors.
func (p *Pipeline) Run(ctx context.Context, imgDir, outDir string) ([]Outcome, error) {
	if err := checkOutDir(outDir); err != nil {
		return nil, err
	}

	paths, err := Discover(imgDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &PreconditionError{Msg: fmt.Sprintf("no images detected in %s; check the image directory", imgDir)}
	}

	return p.Process(ctx, paths, outDir)
}

// Process crops the given images concurrently and returns their outcomes in the order of paths.
func (p *Pipeline) Process(ctx context.Context, paths []string, outDir string) ([]Outcome, error) {
	if err := checkOutDir(outDir); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &PreconditionError{Msg: "no images to process"}
	}
	if p.Cropper == nil {
		return nil, &PreconditionError{Msg: "no face cropper configured"}
	}

	workers := p.workerCount(len(paths))

	log.Infof("crop: processing %d images with %d workers", len(paths), workers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make([]Outcome, len(paths))
		claimed  = &destinations{paths: make(map[string]string)}
		jobs     = make(chan int)
	)

	report := func(i int, o Outcome) {
		outcomes[i] = o
		if p.Progress != nil {
			mu.Lock()
			p.Progress(o)
			mu.Unlock()
		}
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				report(i, p.process(ctx, paths[i], outDir, claimed))
			}
		}()
	}

	next := 0
feed:
	for ; next < len(paths); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Images never handed to a worker are canceled.
	for i := next; i < len(paths); i++ {
		report(i, Outcome{Path: paths[i], Reason: ReasonCanceled, Err: ctx.Err()})
	}

	return outcomes, nil
}

// workerCount returns the number of workers used for n images.
func (p *Pipeline) workerCount(n int) int {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	// Limit the concurrently running workers to maxWorkers.
	return utils.Min(utils.Min(workers, maxWorkers), n)
}

// process crops a single image and writes the result. Every failure is converted into the outcome.
func (p *Pipeline) process(ctx context.Context, path, outDir string, claimed *destinations) (o Outcome) {
	o.Path = path

	defer func() {
		if o.Err != nil {
			if o.Reason == ReasonNone {
				o.Reason = reasonOf(o.Err)
			}
			log.Warnf("crop: skipping %s (%s)", path, o.Err)
		}
	}()

	if o.Err = ctx.Err(); o.Err != nil {
		return o
	}

	key, err := ParseKey(path)
	if err != nil {
		o.Err = err
		return o
	}
	o.Key = key
	o.Dest = filepath.Join(outDir, key.RelPath())

	raw, err := LoadImage(path, key)
	if err != nil {
		o.Err = err
		return o
	}

	face, err := p.Cropper.Crop(ctx, raw)
	if err != nil {
		o.Err = err
		return o
	}

	data, err := encodeImage(o.Dest, face.Image)
	if err != nil {
		o.Err = fmt.Errorf("could not encode the face crop: %w", err)
		return o
	}

	// Only crops ready to be written claim their destination.
	if owner, ok := claimed.claim(o.Dest, path); !ok {
		o.Err = fmt.Errorf("destination %s already claimed by %s", o.Dest, owner)
		o.Reason = ReasonDuplicate
		return o
	}

	if err := EnsureDir(filepath.Dir(o.Dest)); err != nil {
		o.Err = err
		return o
	}
	if err := writeFile(o.Dest, data); err != nil {
		o.Err = err
		return o
	}

	o.Size = int64(len(data))
	log.Infof("crop: writing to %s", o.Dest)

	return o
}

// Discover returns the absolute paths of the .jpg files found under root,
// recursively and in lexical order. Hidden files and directories are skipped.
func Discover(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, &PreconditionError{Msg: fmt.Sprintf("unable to resolve image directory: %v", err)}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, &PreconditionError{Msg: fmt.Sprintf("unable to read image directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &PreconditionError{Msg: fmt.Sprintf("%s is not a directory", root)}
	}

	var paths []string
	err = godirwalk.Walk(root, &godirwalk.Options{
		FollowSymbolicLinks: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(de.Name(), ".") {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if de.IsDir() || filepath.Ext(path) != imageExt {
				return nil
			}
			paths = append(paths, path)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warnf("crop: %s; skipping", err)
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, fmt.Errorf("crop: %w", err)
	}

	return paths, nil
}

// EnsureDir creates dir and its parents. It can be called repeatedly and concurrently for the same path.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	return nil
}

// checkOutDir validates the output directory argument without touching the file system.
func checkOutDir(outDir string) error {
	if outDir == "" {
		return &PreconditionError{Msg: "no output directory specified"}
	}
	if os.IsPathSeparator(outDir[len(outDir)-1]) || strings.HasSuffix(outDir, "/") {
		return &PreconditionError{Msg: "specify the output directory without a trailing separator"}
	}
	return nil
}

// writeFile writes data to a temporary file next to dest and renames it,
// so that dest never holds a partially written image.
func writeFile(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("unable to create the destination file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write the destination file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write the destination file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}
