package main

import (
	"fmt"
	"log"
	"runtime"

	"github.com/remeh/sizedwaitgroup"
)

// Go runs f on a slot of swg and hands its result, panics included, to done.
func Go(swg *sizedwaitgroup.SizedWaitGroup, f func() error, done func(error)) {
	swg.Add()
	go func() {
		defer swg.Done()
		done(Guard(f))
	}()
}

// Guard calls f and converts a panic into an error.
func Guard(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = HandlePanic(r)
		}
	}()
	return f()
}

func HandlePanic(p any) error {
	buf := make([]byte, 100000)
	n := runtime.Stack(buf, false)
	log.Printf("[panic] %v\n\n%s", p, buf[:n])
	return fmt.Errorf("panic: %v", p)
}
