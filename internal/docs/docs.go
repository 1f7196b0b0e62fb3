// Package docs is generated by swag from the handler annotations.
// Regenerate with: swag init -g cmd/api/main.go -o internal/docs
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["home"],
                "summary": "Welcome endpoint",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.WelcomeResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["home"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "List messages",
                "parameters": [
                    {"enum": ["INITIATED", "QUEUED", "SENT", "DELIVERED", "FAILED"], "type": "string", "description": "Filter by status", "name": "status", "in": "query"},
                    {"type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Page size (max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.MessageListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Submit a message",
                "parameters": [
                    {"type": "string", "description": "send_msg:<token>", "name": "Idempotency-Key", "in": "header", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/request.CreateMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.MessageResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/messages/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Get a message",
                "parameters": [
                    {"type": "string", "description": "Message id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/webhooks/dlr": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Delivery receipt webhook",
                "parameters": [
                    {"type": "string", "description": "hex HMAC-SHA256 of the body", "name": "X-Provider-Signature", "in": "header", "required": true},
                    {"description": "Receipt", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/request.DeliveryReceipt"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.ReceiptResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/dead-letters": {
            "get": {
                "produces": ["application/json"],
                "tags": ["dispatch"],
                "summary": "List dead letters",
                "parameters": [
                    {"type": "integer", "default": 50, "description": "Maximum records (max 500)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.DeadLettersResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/scheduler": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Control the overdue monitor",
                "parameters": [
                    {"description": "Scheduler action (start|stop)", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/request.SchedulerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.SchedulerControlResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "request.CreateMessageRequest": {
            "type": "object",
            "required": ["recipient", "sender_id", "text"],
            "properties": {
                "recipient": {"type": "string", "maxLength": 15},
                "sender_id": {"type": "string", "maxLength": 11},
                "text": {"type": "string"}
            }
        },
        "request.DeliveryReceipt": {
            "type": "object",
            "required": ["provider_reference", "status"],
            "properties": {
                "provider_reference": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "request.SchedulerRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["start", "stop"]}
            }
        },
        "response.ErrorBody": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "response.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/response.ErrorBody"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.MessageDTO": {
            "type": "object",
            "properties": {
                "client_message_id": {"type": "string"},
                "created_at": {"type": "string"},
                "delivered_at": {"type": "string"},
                "encoding": {"type": "string"},
                "failure_reason": {"type": "string"},
                "id": {"type": "string"},
                "provider_reference": {"type": "string"},
                "recipient": {"type": "string"},
                "segment_count": {"type": "integer"},
                "sender_id": {"type": "string"},
                "sent_at": {"type": "string"},
                "status": {"type": "string"},
                "text": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "response.MessageResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/response.MessageDTO"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.MessageListPayload": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/response.MessageDTO"}},
                "limit": {"type": "integer"},
                "page": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "response.MessageListResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/response.MessageListPayload"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.ReceiptPayload": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "message_id": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "response.ReceiptResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/response.ReceiptPayload"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.DeadLetterDTO": {
            "type": "object",
            "properties": {
                "attempts": {"type": "integer"},
                "failed_at": {"type": "string"},
                "last_error": {"type": "string"},
                "message_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "response.DeadLettersResponse": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/response.DeadLetterDTO"}},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.SchedulerControlPayload": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "running": {"type": "boolean"}
            }
        },
        "response.SchedulerControlResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/response.SchedulerControlPayload"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.WelcomePayload": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "response.WelcomeResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/response.WelcomePayload"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "response.HealthPayload": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        },
        "response.HealthResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/response.HealthPayload"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "SMS Gateway API",
	Description:      "Idempotent SMS submission, rate-limited dispatch and signed delivery receipts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
