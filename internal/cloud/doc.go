// Package cloud wraps the AWS services the orchestrator talks to: Secrets Manager
// for build credentials and teardown, ECR for image lookups and repository
// deletion, EC2 and ELBv2 for discovery, and STS for the caller identity.
//
// Every client depends on a narrow *API interface that mirrors the SDK method
// signatures, so tests substitute func-field mocks. Secret values are never logged.
package cloud
