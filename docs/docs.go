// Package docs registers the OpenAPI document served under /swagger/.
// Keep it in step with the handler annotations (swag init -g cmd/pipeline-api/main.go).
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Service is up", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs": {
            "get": {
                "description": "List recorded runs, newest first",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "parameters": [
                    {"type": "integer", "default": 50, "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Runs", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "History disabled", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "description": "Run the given actions in order against the loaded dataset and return the final result. The body may be JSON or YAML.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Execute an action plan",
                "parameters": [
                    {"description": "Action plan", "name": "plan", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.RunSpec"}}
                ],
                "responses": {
                    "200": {"description": "Run finished (check status for failed runs)", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid action plan", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "description": "Retrieve the status, counters and result preview of a run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run details", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs/{id}/steps": {
            "get": {
                "description": "Retrieve what happened to every action of a run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run steps",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run steps", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs/{id}/errors": {
            "get": {
                "description": "Retrieve the recoverable and fatal errors recorded for a run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run errors",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run errors", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs/{id}/files": {
            "get": {
                "description": "List the export files written by a run, with download links",
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "List run files",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run files", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/download/{runID}/{filename}": {
            "get": {
                "description": "Download a file exported by a run",
                "produces": ["application/octet-stream"],
                "tags": ["files"],
                "summary": "Download file",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "runID", "in": "path", "required": true},
                    {"type": "string", "description": "File name", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "File download", "schema": {"type": "file"}},
                    "404": {"description": "File not found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "model.Action": {
            "type": "object",
            "properties": {
                "function": {"type": "string", "example": "select_rows"},
                "args": {"type": "object", "additionalProperties": true}
            }
        },
        "model.Export": {
            "type": "object",
            "properties": {
                "file": {"type": "string", "example": "result.csv"}
            }
        },
        "model.RunSpec": {
            "type": "object",
            "properties": {
                "actions": {"type": "array", "items": {"$ref": "#/definitions/model.Action"}},
                "export": {"$ref": "#/definitions/model.Export"},
                "preview_rows": {"type": "integer", "example": 10}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Action Pipeline API",
	Description:      "Executes planner-emitted action lists against a manufacturing job dataset.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
