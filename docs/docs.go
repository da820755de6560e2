package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Hive Services Backend",
    "description": "Service-request lifecycle: submission, SLA escalation, assignment, execution, invoicing and photo evidence",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "ActorRole": {"type": "apiKey", "in": "header", "name": "X-Actor-Role"},
    "ActorId": {"type": "apiKey", "in": "header", "name": "X-Actor-Id"},
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Liveness and store ping", "responses": {"200": {"description": "ok"}}}},
    "/api/requests": {
      "get": {"tags": ["requests"], "summary": "List service requests", "responses": {"200": {"description": "page of requests"}}},
      "post": {"tags": ["requests"], "summary": "Submit a service request", "responses": {"201": {"description": "created"}, "400": {"description": "validation error"}}}
    },
    "/api/requests/{id}": {"get": {"tags": ["requests"], "summary": "Request details with derived tier", "responses": {"200": {"description": "request"}, "404": {"description": "not found"}}}},
    "/api/requests/{id}/approve": {"post": {"tags": ["transitions"], "summary": "Approve with schedule and assignment", "responses": {"200": {"description": "approved"}, "409": {"description": "invalid transition or concurrent modification"}, "422": {"description": "missing assignment"}}}},
    "/api/requests/{id}/invoice": {"post": {"tags": ["invoices"], "summary": "Issue invoice for a completed request", "responses": {"201": {"description": "created"}, "400": {"description": "validation error"}}}},
    "/api/requests/{id}/photos": {"post": {"tags": ["photos"], "summary": "Append a before/after photo", "responses": {"201": {"description": "stored"}}}},
    "/api/stats": {"get": {"tags": ["stats"], "summary": "Dashboard snapshot", "responses": {"200": {"description": "snapshot"}}}},
    "/api/admin/escalation/sweep": {"post": {"tags": ["admin"], "summary": "Run the escalation sweep now", "responses": {"200": {"description": "sweep result"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
