// Package identity defines the contract between the forms and the hosted
// account service that owns credentials, along with the error taxonomy used
// to turn backend failures back into form messages.
//
// Adapters live in subpackages: memory keeps accounts in process and kratos
// talks to Ory Kratos self-service flows.
package identity
