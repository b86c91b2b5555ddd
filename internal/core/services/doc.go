// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Every collaborator is passed in through a constructor; services
// never create clients of their own.
package services
