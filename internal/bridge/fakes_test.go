package bridge

import (
	"encoding/json"
	"sync"
)

type post struct {
	data         []byte
	targetOrigin string
}

type fakeFrame struct {
	src     string
	err     error
	onPost  func(data []byte)
	mu      sync.Mutex
	posts   []post
	panicOn bool
}

func (f *fakeFrame) Src() string { return f.src }

func (f *fakeFrame) PostMessage(data []byte, targetOrigin string) error {
	if f.panicOn {
		panic("frame detached")
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.posts = append(f.posts, post{data: data, targetOrigin: targetOrigin})
	f.mu.Unlock()
	if f.onPost != nil {
		f.onPost(data)
	}
	return nil
}

func (f *fakeFrame) getPosts() []post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]post(nil), f.posts...)
}

type fakeDocument struct {
	frames map[string]Frame
}

func (d *fakeDocument) FrameByID(id string) (Frame, bool) {
	f, ok := d.frames[id]
	return f, ok
}

type fakeWindow struct {
	mu       sync.Mutex
	next     int
	handlers map[int]MessageHandler
	adds     int
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{handlers: make(map[int]MessageHandler)}
}

func (w *fakeWindow) AddMessageHandler(h MessageHandler) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.adds++
	w.handlers[id] = h
	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

func (w *fakeWindow) bound() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.handlers)
}

func (w *fakeWindow) deliver(origin string, data []byte) {
	w.mu.Lock()
	hs := make([]MessageHandler, 0, len(w.handlers))
	for _, h := range w.handlers {
		hs = append(hs, h)
	}
	w.mu.Unlock()
	for _, h := range hs {
		h(MessageEvent{Origin: origin, Data: data})
	}
}

func (w *fakeWindow) deliverJSON(origin string, v any) {
	data, _ := json.Marshal(v)
	w.deliver(origin, data)
}
