// Package users provides access to the externally-owned user records of the
// taxbot backend. The rate limiter consumes it through the Service interface:
// it reads a user's monthly question quota fields and writes them back after
// an increment or a calendar-month rollover.
//
// Two implementations are provided: MemoryService for tests and single-node
// development, and PostgresService for deployments. Only the quota fields
// (questions_asked, questions_reset_date) are ever written by this backend;
// everything else on the user record is owned by the admin/billing surface.
package users
