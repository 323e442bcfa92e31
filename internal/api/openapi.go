package api

// Minimal OpenAPI document served at /swagger.json.
const openAPISpec = `{
  "openapi": "3.0.0",
  "info": {
    "title": "Inventory Stock Ledger API",
    "version": "2.0.0"
  },
  "paths": {
    "/health": {
      "get": {
        "summary": "Health check",
        "responses": {
          "200": { "description": "Service is healthy", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/HealthResponse" } } } },
          "503": { "description": "Storage unreachable" }
        }
      }
    },
    "/api/inventory": {
      "get": {
        "summary": "Page through the ledger ordered by product id",
        "parameters": [
          { "name": "limit", "in": "query", "schema": { "type": "integer", "minimum": 1, "maximum": 500, "default": 50 } },
          { "name": "offset", "in": "query", "schema": { "type": "integer", "minimum": 0, "default": 0 } }
        ],
        "responses": {
          "200": { "description": "Ledger rows", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/InventoryResponse" } } } } },
          "400": { "description": "Invalid paging parameters" }
        }
      }
    },
    "/api/inventory/alerts": {
      "get": {
        "summary": "Current replenishment alerts",
        "responses": {
          "200": { "description": "Alerts", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/StockAlert" } } } } }
        }
      }
    },
    "/api/inventory/{productId}": {
      "get": {
        "summary": "Get the ledger row of a product",
        "parameters": [ { "$ref": "#/components/parameters/ProductId" } ],
        "responses": {
          "200": { "description": "Inventory found", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/InventoryResponse" } } } },
          "404": { "description": "Unknown product" }
        }
      }
    },
    "/api/inventory/{productId}/audit": {
      "get": {
        "summary": "Reconcile reserved quantity against active reservations",
        "parameters": [ { "$ref": "#/components/parameters/ProductId" } ],
        "responses": {
          "200": { "description": "Audit report", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/AuditReport" } } } },
          "404": { "description": "Unknown product" }
        }
      }
    },
    "/api/inventory/{productId}/receive": {
      "post": {
        "summary": "Receive stock",
        "parameters": [ { "$ref": "#/components/parameters/ProductId" } ],
        "requestBody": { "required": true, "content": { "application/json": { "schema": { "$ref": "#/components/schemas/QuantityRequest" } } } },
        "responses": {
          "200": { "description": "Updated row", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/InventoryResponse" } } } },
          "400": { "description": "Invalid quantity" }
        }
      }
    },
    "/api/inventory/{productId}/write-off": {
      "post": {
        "summary": "Write off unreserved stock",
        "parameters": [ { "$ref": "#/components/parameters/ProductId" } ],
        "requestBody": { "required": true, "content": { "application/json": { "schema": { "$ref": "#/components/schemas/QuantityRequest" } } } },
        "responses": {
          "200": { "description": "Updated row", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/InventoryResponse" } } } },
          "404": { "description": "Unknown product" },
          "409": { "description": "Would write off reserved units", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/ErrorResponse" } } } }
        }
      }
    },
    "/api/reservations": {
      "post": {
        "summary": "Reserve every line of an order or none",
        "requestBody": { "required": true, "content": { "application/json": { "schema": { "$ref": "#/components/schemas/ReserveRequest" } } } },
        "responses": {
          "201": { "description": "Held", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/Reservation" } } } } },
          "400": { "description": "Invalid request" },
          "409": { "description": "Insufficient stock", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/ErrorResponse" } } } },
          "503": { "description": "Transient failure, retry" }
        }
      }
    },
    "/api/reservations/{orderId}": {
      "get": {
        "summary": "List the reservations of an order",
        "parameters": [ { "$ref": "#/components/parameters/OrderId" } ],
        "responses": {
          "200": { "description": "Reservations", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/Reservation" } } } } },
          "404": { "description": "No reservations" }
        }
      }
    },
    "/api/reservations/{orderId}/confirm": {
      "post": {
        "summary": "Consume the holds of an order",
        "parameters": [ { "$ref": "#/components/parameters/OrderId" } ],
        "responses": {
          "200": { "description": "Rows confirmed by this call", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/Reservation" } } } } }
        }
      }
    },
    "/api/reservations/{orderId}/release": {
      "post": {
        "summary": "Return the holds of an order",
        "parameters": [ { "$ref": "#/components/parameters/OrderId" } ],
        "responses": {
          "200": { "description": "Rows released by this call", "content": { "application/json": { "schema": { "type": "array", "items": { "$ref": "#/components/schemas/Reservation" } } } } }
        }
      }
    },
    "/api/reservations/by-id/{id}": {
      "delete": {
        "summary": "Release a single active reservation",
        "parameters": [ { "name": "id", "in": "path", "required": true, "schema": { "type": "string", "format": "uuid" } } ],
        "responses": {
          "200": { "description": "Released", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Reservation" } } } },
          "404": { "description": "Unknown reservation" },
          "409": { "description": "Reservation already confirmed or released" }
        }
      }
    }
  },
  "components": {
    "parameters": {
      "ProductId": { "name": "productId", "in": "path", "required": true, "schema": { "type": "string" } },
      "OrderId": { "name": "orderId", "in": "path", "required": true, "schema": { "type": "string" } }
    },
    "schemas": {
      "HealthResponse": { "type": "object", "properties": { "status": { "type": "string" } } },
      "InventoryResponse": {
        "type": "object",
        "properties": {
          "productId": { "type": "string" },
          "onHand": { "type": "integer" },
          "reserved": { "type": "integer" },
          "available": { "type": "integer" },
          "minStockLevel": { "type": "integer" },
          "reorderPoint": { "type": "integer" },
          "reorderQuantity": { "type": "integer" },
          "lastRestockAt": { "type": "string", "format": "date-time", "nullable": true },
          "updatedAtUtc": { "type": "string", "format": "date-time" }
        }
      },
      "StockAlert": {
        "type": "object",
        "properties": {
          "productId": { "type": "string" },
          "currentAvailable": { "type": "integer" },
          "threshold": { "type": "integer" },
          "category": { "type": "string", "enum": ["LOW_STOCK", "OUT_OF_STOCK", "NEEDS_REORDER"] }
        }
      },
      "AuditReport": {
        "type": "object",
        "properties": {
          "productId": { "type": "string" },
          "onHand": { "type": "integer" },
          "reserved": { "type": "integer" },
          "reservedRows": { "type": "integer" },
          "drift": { "type": "integer" },
          "consistent": { "type": "boolean" }
        }
      },
      "QuantityRequest": { "type": "object", "properties": { "quantity": { "type": "integer", "minimum": 1 } } },
      "ReserveRequest": {
        "type": "object",
        "properties": {
          "orderId": { "type": "string" },
          "lines": {
            "type": "array",
            "items": { "type": "object", "properties": { "productId": { "type": "string" }, "quantity": { "type": "integer", "minimum": 1 } } }
          }
        }
      },
      "Reservation": {
        "type": "object",
        "properties": {
          "id": { "type": "string", "format": "uuid" },
          "orderId": { "type": "string" },
          "productId": { "type": "string" },
          "quantity": { "type": "integer" },
          "status": { "type": "string", "enum": ["RESERVED", "CONFIRMED", "RELEASED"] },
          "releaseReason": { "type": "string", "enum": ["CANCELLED", "EXPIRED", "COMPENSATED", "ADJUSTED"] },
          "createdAtUtc": { "type": "string", "format": "date-time" },
          "confirmedAtUtc": { "type": "string", "format": "date-time", "nullable": true },
          "releasedAtUtc": { "type": "string", "format": "date-time", "nullable": true }
        }
      },
      "ErrorResponse": {
        "type": "object",
        "properties": {
          "error": { "type": "string" },
          "productId": { "type": "string" },
          "requested": { "type": "integer" },
          "available": { "type": "integer" }
        }
      }
    }
  }
}`
