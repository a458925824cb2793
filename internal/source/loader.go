package source

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/reelcomposer/internal/timeline"
)

// DecodeFunc loads the image a scene refers to.
type DecodeFunc func(ref string, dpi int) (image.Image, error)

// Loader resolves scene images in parallel. A scene whose image cannot be
// read keeps a nil Image (the compositor draws a placeholder); only
// cancellation or a deadline fails the batch.
type Loader struct {
	Workers int
	DPI     int
	Decode  DecodeFunc
	Log     *logrus.Entry
}

// Result counts what Load did.
type Result struct {
	Loaded  int
	Missing int // no image given
	Failed  int // given but unreadable
}

// Load fills scenes[i].Image for every scene with an ImagePath. Decoded
// images are only assigned once the whole batch finished, so when ctx ends
// first Load returns immediately and leaves scenes untouched.
func (l *Loader) Load(ctx context.Context, scenes []timeline.Scene) (Result, error) {
	decode := l.Decode
	if decode == nil {
		decode = Decode
	}
	workers := l.Workers
	if workers <= 0 {
		workers = 4
	}
	log := l.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	imgs := make([]image.Image, len(scenes))
	errs := make([]error, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	done := make(chan error, 1)
	go func() {
		for i := range scenes {
			if scenes[i].Image != nil || scenes[i].ImagePath == "" {
				continue
			}
			ref := scenes[i].ImagePath
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				imgs[i], errs[i] = decode(ref, l.DPI)
				return nil
			})
		}
		done <- g.Wait()
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return Result{}, err
		}
	}

	var res Result
	for i := range scenes {
		sc := &scenes[i]
		switch {
		case sc.Image != nil:
			res.Loaded++
		case sc.ImagePath == "":
			res.Missing++
		case errs[i] != nil || imgs[i] == nil:
			res.Failed++
			log.WithField("scene", i+1).Warnf("[!] image unavailable, using placeholder: %v", errs[i])
		default:
			sc.Image = imgs[i]
			res.Loaded++
		}
	}
	return res, nil
}
