package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"

	"synthmap/synth"
)

// Batch converts many inputs with bounded parallelism. Sources share no
// state, so a failure or panic in one never affects the others.
type Batch struct {
	cfg   *Config
	conv  *Converter
	store *Store // optional
	fetch *Fetcher

	mu      sync.Mutex
	written map[string]string // output path -> source, this run
}

func NewBatch(cfg *Config, conv *Converter, store *Store, fetch *Fetcher) *Batch {
	return &Batch{cfg: cfg, conv: conv, store: store, fetch: fetch}
}

type job struct {
	input string
	load  func(ctx context.Context) ([]Source, error)
}

type result struct {
	source  string
	outputs []string
	skipped bool
	err     error
}

// Summary counts the sources of a batch run.
type Summary struct {
	Sources, Converted, Skipped, Failed, Outputs int

	firstSource string
	firstErr    error
}

// Err is nil when every source converted, else it names the first failure
// in input order.
func (s Summary) Err() error {
	if s.firstErr == nil {
		return nil
	}
	return fmt.Errorf("converted %d/%d sources; first failure %s: %w",
		s.Converted+s.Skipped, s.Sources, s.firstSource, s.firstErr)
}

func (b *Batch) Run(ctx context.Context, inputs []string) Summary {
	start := time.Now()
	b.mu.Lock()
	b.written = make(map[string]string)
	b.mu.Unlock()
	jobs := b.plan(inputs)

	results := make([][]result, len(jobs))
	swg := sizedwaitgroup.New(b.cfg.Workers)
	for i, j := range jobs {
		Go(&swg, func() error {
			results[i] = b.process(ctx, j)
			return nil
		}, func(err error) {
			if err != nil {
				results[i] = append(results[i], result{source: j.input, err: err})
			}
		})
	}
	swg.Wait()

	var sum Summary
	for _, rs := range results {
		for _, r := range rs {
			sum.Sources++
			switch {
			case r.err != nil:
				sum.Failed++
				if sum.firstErr == nil {
					sum.firstSource, sum.firstErr = r.source, r.err
				}
			case r.skipped:
				sum.Skipped++
			default:
				sum.Converted++
				sum.Outputs += len(r.outputs)
			}
		}
	}
	log.Printf("[batch] %s sources: %s converted (%s maps), %s unchanged, %s failed in %s",
		humanize.Comma(int64(sum.Sources)),
		humanize.Comma(int64(sum.Converted)),
		humanize.Comma(int64(sum.Outputs)),
		humanize.Comma(int64(sum.Skipped)),
		humanize.Comma(int64(sum.Failed)),
		durafmt.Parse(time.Since(start)).LimitFirstN(2),
	)
	return sum
}

// plan expands inputs into jobs: remote inputs are fetched, directories are
// walked for known files and archives, plain paths are read as they are.
func (b *Batch) plan(inputs []string) []job {
	var jobs []job
	for _, input := range inputs {
		if isRemote(input) {
			jobs = append(jobs, job{input: input, load: func(ctx context.Context) ([]Source, error) {
				return b.fetch.Fetch(ctx, input)
			}})
			continue
		}
		info, err := os.Stat(input)
		if err != nil {
			jobs = append(jobs, failedJob(input, err))
			continue
		}
		if !info.IsDir() {
			jobs = append(jobs, localJob(input))
			continue
		}
		paths, err := walkSources(input)
		if err != nil {
			jobs = append(jobs, failedJob(input, err))
			continue
		}
		for _, p := range paths {
			jobs = append(jobs, localJob(p))
		}
	}
	return jobs
}

func failedJob(input string, err error) job {
	return job{input: input, load: func(context.Context) ([]Source, error) { return nil, err }}
}

func localJob(path string) job {
	return job{input: path, load: func(context.Context) ([]Source, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return expand(Source{Name: path, Data: data})
	}}
}

// walkSources lists the known source files and archives under dir, sorted.
// Unreadable entries are logged and skipped.
func walkSources(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("[batch] %v", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isSource(d.Name()) || isArchive(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *Batch) process(ctx context.Context, j job) []result {
	if err := ctx.Err(); err != nil {
		return []result{{source: j.input, err: err}}
	}
	srcs, err := j.load(ctx)
	if err != nil {
		b.recordFailure(j.input, err)
		return []result{{source: j.input, err: err}}
	}
	out := make([]result, 0, len(srcs))
	for _, src := range srcs {
		r := result{source: src.Name}
		r.err = Guard(func() error {
			var err error
			r.outputs, r.skipped, err = b.convert(src)
			return err
		})
		if r.err != nil {
			b.recordFailure(src.Name, r.err)
		}
		out = append(out, r)
	}
	return out
}

// convert writes the maps of one source and records them. A source whose
// content, settings and outputs are unchanged since the last run is skipped.
func (b *Batch) convert(src Source) (outputs []string, skipped bool, err error) {
	digest := Digest(src.Data)
	settings, err := b.conv.Settings()
	if err != nil {
		return nil, false, err
	}
	if !b.cfg.Force && b.store != nil {
		prev, err := b.store.Fresh(src.Name, digest, settings)
		if err != nil {
			return nil, false, err
		}
		if len(prev) > 0 && b.inOutDir(prev) && allExist(prev) {
			if err := b.claim(src.Name, prev); err != nil {
				return nil, false, err
			}
			b.logUnchanged(src.Name, prev)
			return prev, true, nil
		}
	}

	outs, err := b.conv.Convert(src)
	if err != nil {
		return nil, false, err
	}
	paths := make([]string, len(outs))
	for i, out := range outs {
		paths[i] = filepath.Join(b.cfg.OutDir, out.Name+".json")
	}
	if err := b.claim(src.Name, paths); err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(b.cfg.OutDir, 0o755); err != nil {
		return nil, false, err
	}

	records := make([]Conversion, 0, len(outs))
	for i, out := range outs {
		path := paths[i]
		if err := synth.EncodeFile(path, out.Map); err != nil {
			return outputs, false, fmt.Errorf("write %s: %w", path, err)
		}
		outputs = append(outputs, path)

		singles, rails := out.Map.Count()
		log.Printf("[batch] %s -> %s: %s notes, %s rails, %s",
			src.Name, path,
			humanize.Comma(int64(singles)), humanize.Comma(int64(rails)),
			durafmt.Parse(time.Duration(out.Map.Length)*time.Millisecond).LimitFirstN(2),
		)
		records = append(records, Conversion{
			Source:   src.Name,
			Output:   path,
			Digest:   digest,
			Settings: settings,
			Singles:  singles,
			Rails:    rails,
			LengthMS: out.Map.Length,
		})
	}
	if b.store != nil {
		if err := b.store.Replace(src.Name, records); err != nil {
			return outputs, false, err
		}
	}
	return outputs, false, nil
}

// claim reserves paths for source for the rest of the run. Nothing is
// reserved when any path already belongs to another source.
func (b *Batch) claim(source string, paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		if other, ok := b.written[p]; ok && other != source {
			return fmt.Errorf("%s (from %s): %w", p, other, ErrOutputConflict)
		}
	}
	for _, p := range paths {
		b.written[p] = source
	}
	return nil
}

func (b *Batch) inOutDir(paths []string) bool {
	dir := filepath.Clean(b.cfg.OutDir)
	for _, p := range paths {
		if filepath.Dir(p) != dir {
			return false
		}
	}
	return true
}

func (b *Batch) logUnchanged(source string, paths []string) {
	for _, p := range paths {
		c, err := b.store.Conversion(source, p)
		if err != nil || c == nil {
			log.Printf("[batch] %s -> %s: unchanged", source, p)
			continue
		}
		log.Printf("[batch] %s -> %s: unchanged, %s notes, %s rails",
			source, p, humanize.Comma(int64(c.Singles)), humanize.Comma(int64(c.Rails)))
	}
}

func (b *Batch) recordFailure(source string, err error) {
	log.Printf("[batch] %s: %v", source, err)
	if b.store == nil {
		return
	}
	if serr := b.store.Fail(source, err); serr != nil {
		log.Printf("[batch] %v", serr)
	}
}

func allExist(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return false
		}
	}
	return true
}
