package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           kopiad API
// @version         1.0
// @description     HTTP API for supervising local Kopia engine instances.
//
// @contact.name   kopiad maintainers
// @contact.url    https://github.com/your-org/kopiad
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
