package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LMS Enrollment Sync API",
        "description": "Reconciles LMS students and courses into the school database and runs the enrollment workflow, with a simulated fallback while the LMS is offline.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Sync", "description": "LMS reconciliation and its audit trail"},
        {"name": "Enrollments", "description": "Enrollment workflow"},
        {"name": "LMS", "description": "LMS listings and connectivity"}
    ],
    "paths": {
        "/sync/{entity}": {
            "post": {
                "tags": ["Sync"],
                "summary": "Synchronize students or courses from the LMS",
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string", "enum": ["students", "courses"]},
                    {"name": "X-LMS-Offline", "in": "header", "type": "boolean"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/SyncRequest"}}
                ],
                "responses": {
                    "200": {"description": "Every record applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued as a background job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "206": {"description": "Some records failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "LMS unreachable or offline", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sync/jobs/{id}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Async sync job status",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sync/runs": {
            "get": {
                "tags": ["Sync"],
                "summary": "List persisted sync runs",
                "parameters": [
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sync/runs/{id}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Sync run detail",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sync/runs/{id}/export": {
            "get": {
                "tags": ["Sync"],
                "summary": "Download a sync run",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student in a course",
                "parameters": [
                    {"name": "X-LMS-Offline", "in": "header", "type": "boolean"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created; meta.caveats is true when optional steps failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Local enrollment could not be persisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Enrollment detail",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List mirrored students",
                "parameters": [
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["active", "inactive"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Mirrored student detail",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lms/students": {
            "get": {
                "tags": ["LMS"],
                "summary": "List LMS students, simulated while offline",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "X-LMS-Offline", "in": "header", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK; see the X-Data-Provenance header", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/lms/courses": {
            "get": {
                "tags": ["LMS"],
                "summary": "List LMS courses, simulated while offline",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "X-LMS-Offline", "in": "header", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK; see the X-Data-Provenance header", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/lms/status": {
            "get": {
                "tags": ["LMS"],
                "summary": "Current LMS connectivity",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/lms/probe": {
            "post": {
                "tags": ["LMS"],
                "summary": "Ping the LMS now",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "SyncRequest": {
            "type": "object",
            "properties": {
                "full_sync": {"type": "boolean"},
                "page_size": {"type": "integer"},
                "async": {"type": "boolean"}
            }
        },
        "EnrollmentConfig": {
            "type": "object",
            "properties": {
                "start_date": {"type": "string", "format": "date", "example": "2026-02-01"},
                "status": {"type": "string", "enum": ["active", "inactive", "locked", "graduated"]},
                "observations": {"type": "string"},
                "with_payment": {"type": "boolean"},
                "payment_method": {"type": "string", "enum": ["boleto", "pix", "cartao", "isento"]},
                "amount": {"type": "number"}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "course_id": {"type": "string"},
                "config": {"$ref": "#/definitions/EnrollmentConfig"}
            },
            "required": ["student_id", "course_id"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
