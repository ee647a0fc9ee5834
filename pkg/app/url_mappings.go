package app

import (
	"github.com/ebookforge/ebookctl/internal/controllers"
)

func SetupMappings(app *Application) {
	app.Engine.POST("/generate_ebook", controllers.NewGenerateEbookController(app.Config, app.Logger).Handle)
}
