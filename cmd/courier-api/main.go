package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

func main() {
	app := mustBootstrapCourierAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}
