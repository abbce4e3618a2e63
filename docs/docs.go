// Package docs holds the Swagger document served at /swagger/*any.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/scans": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Submit a TCP connect scan of one target over an inclusive port range. The definition is validated before it is queued.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Scans"],
                "summary": "Create a new scan task",
                "operationId": "createScan",
                "parameters": [
                    {
                        "description": "Scan request parameters",
                        "name": "scanRequest",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.CreateScanRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Scan accepted", "schema": {"$ref": "#/definitions/api.ScanAcceptedResponse"}},
                    "400": {"description": "Malformed JSON body or invalid scan definition", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "429": {"description": "Rate limit exceeded", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal error while persisting or queueing the task", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/scans/{id}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Retrieve a live snapshot of a scan task including progress and, once terminal, ordered results.",
                "produces": ["application/json"],
                "tags": ["Scans"],
                "summary": "Get scan status and results",
                "operationId": "getScan",
                "parameters": [
                    {"type": "string", "description": "Scan Task ID (UUID v4)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Current task snapshot", "schema": {"$ref": "#/definitions/api.ScanTask"}},
                    "400": {"description": "Malformed task identifier", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Task not found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "429": {"description": "Rate limit exceeded", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal error when loading the task", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Request cancellation. A running task is stored as cancelled with its partial results.",
                "produces": ["application/json"],
                "tags": ["Scans"],
                "summary": "Cancel a scan task",
                "operationId": "cancelScan",
                "parameters": [
                    {"type": "string", "description": "Scan Task ID (UUID v4)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Cancellation requested", "schema": {"$ref": "#/definitions/api.CancelResponse"}},
                    "400": {"description": "Malformed task identifier", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Task not found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "409": {"description": "Task already reached a terminal state", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "500": {"description": "Internal error when requesting cancellation", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.CancelResponse": {
            "type": "object",
            "properties": {
                "cancel_requested": {"type": "boolean", "example": true},
                "id": {"type": "string", "format": "uuid", "example": "a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"},
                "status": {"type": "string", "example": "running"}
            }
        },
        "api.CreateScanRequest": {
            "type": "object",
            "required": ["target"],
            "properties": {
                "concurrency": {"type": "integer", "example": 100},
                "ports": {"type": "string", "example": "20-1024"},
                "target": {"type": "string", "example": "192.0.2.10"},
                "timeout_seconds": {"type": "integer", "example": 2}
            }
        },
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "task not found"}
            }
        },
        "api.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        },
        "api.Progress": {
            "type": "object",
            "properties": {
                "done": {"type": "integer", "example": 512},
                "total": {"type": "integer", "example": 1024}
            }
        },
        "api.ScanAcceptedResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid", "example": "a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"},
                "status": {"type": "string", "example": "pending"}
            }
        },
        "api.ScanTask": {
            "type": "object",
            "properties": {
                "cancel_requested": {"type": "boolean"},
                "complete": {"type": "boolean"},
                "completed_at": {"type": "string", "format": "date-time"},
                "concurrency": {"type": "integer", "example": 100},
                "created_at": {"type": "string", "format": "date-time", "example": "2024-01-02T15:04:05Z"},
                "error": {"type": "string"},
                "id": {"type": "string", "format": "uuid", "example": "a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"},
                "ports": {"type": "string", "example": "1-1024"},
                "progress": {"$ref": "#/definitions/api.Progress"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/output.Record"}},
                "started_at": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["pending", "running", "completed", "cancelled", "failed"], "example": "running"},
                "summary": {"$ref": "#/definitions/scanner.Summary"},
                "target": {"type": "string", "example": "192.0.2.10"},
                "timeout_seconds": {"type": "integer", "example": 2}
            }
        },
        "output.Record": {
            "type": "object",
            "properties": {
                "ip": {"type": "string", "example": "192.0.2.10"},
                "port": {"type": "integer", "example": 443},
                "reason": {"type": "string", "example": "connection refused"},
                "status": {"type": "string", "enum": ["OPEN", "CLOSED", "ERROR"], "example": "OPEN"}
            }
        },
        "scanner.Summary": {
            "type": "object",
            "properties": {
                "closed": {"type": "integer"},
                "error": {"type": "integer"},
                "open": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "description": "Bearer API key, e.g. \"Bearer s3cr3t\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "portsweep API",
	Description:      "Asynchronous TCP connect scans of a single host over a port range.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
