package app

import (
	"context"
	"io"

	"makerwatch/internal/chain"
	"makerwatch/internal/presenter"
	"makerwatch/internal/service"
)

// Once runs every pass a single time and prints the results to out.
func (a *App) Once(ctx context.Context, out io.Writer) error {
	reader := a.newReader(nil)
	defer reader.Close()
	return a.once(ctx, reader, out)
}

func (a *App) once(ctx context.Context, reader chain.Reader, out io.Writer) error {
	svc := service.New(a.Config, service.Deps{
		Reader:    reader,
		Presenter: presenter.NewConsole(out),
		Logger:    a.Logger,
	})
	return svc.Once(ctx)
}
