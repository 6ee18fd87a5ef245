package ingest

import (
	"github.com/pocketbase/pocketbase/core"

	"rc-timing/liverc"
)

type Service struct {
	App      core.App
	Source   Source
	Upserter *Upserter
}

func NewService(app core.App, baseURL string) (*Service, error) {
	client, err := liverc.NewClient(baseURL)
	if err != nil {
		return nil, err
	}
	return NewServiceWithSource(app, DirectSource{C: client}), nil
}

func NewServiceWithSource(app core.App, src Source) *Service {
	return &Service{App: app, Source: src, Upserter: NewUpserter(app)}
}
