// seed writes a development audit through the workflow engine so its ledger chain is valid.
// Run with go run ./cmd/seed. Idempotent: skips if the dev audit already has requirements.
package main

import (
	"context"
	"log"
	"time"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/config"
	"auditflow/backend/internal/db"
	findingdomain "auditflow/backend/internal/finding/domain"
	findingrepo "auditflow/backend/internal/finding/repository"
	"auditflow/backend/internal/ledger"
	ledgerrepo "auditflow/backend/internal/ledger/repository"
	"auditflow/backend/internal/policy/engine"
	policyrepo "auditflow/backend/internal/policy/repository"
	requirementdomain "auditflow/backend/internal/requirement/domain"
	requirementrepo "auditflow/backend/internal/requirement/repository"
	submissionrepo "auditflow/backend/internal/submission/repository"
	"auditflow/backend/internal/workflow"
	workflowrepo "auditflow/backend/internal/workflow/repository"
)

const devAuditID = "dev-audit-001"

var (
	devAuditor = actor.Actor{ID: "dev-auditor-001", Type: actor.TypeUser, Role: actor.RoleAuditor}
	devAuditee = actor.Actor{ID: "dev-auditee-001", Type: actor.TypeUser, Role: actor.RoleAuditee}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	requirements := requirementrepo.NewPostgresRepository(conn)
	existing, err := requirements.ListRequirementsByAudit(ctx, devAuditID)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if len(existing) > 0 {
		log.Printf("Seed already applied (%s has requirements). Skipping.", devAuditID)
		return
	}

	authz, err := engine.NewOPAEvaluator(policyrepo.NewPostgresRepository(conn))
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	tx := db.NewTxManager(conn)
	eng := workflow.NewEngine(requirements, submissionrepo.NewPostgresRepository(conn), findingrepo.NewPostgresRepository(conn),
		workflowrepo.NewPostgresRequestRepository(conn), ledger.New(ledgerrepo.NewPostgresRepository(conn), tx), tx, authz)

	now := time.Now().UTC()
	overdue := now.Add(-72 * time.Hour)
	soon := now.Add(36 * time.Hour)
	later := now.AddDate(0, 0, 30)

	seeds := []*requirementdomain.Requirement{
		{AuditID: devAuditID, DocumentType: "Access review", Mandatory: true, Deadline: &overdue,
			ComplianceFramework: "SOC 2", RiskLevel: requirementdomain.RiskHigh, AutoEscalate: true},
		{AuditID: devAuditID, DocumentType: "Incident response plan", Mandatory: true, Deadline: &soon,
			ComplianceFramework: "ISO 27001", RiskLevel: requirementdomain.RiskMedium, AutoEscalate: true},
		{AuditID: devAuditID, DocumentType: "Vendor inventory", Deadline: &later, RiskLevel: requirementdomain.RiskLow},
	}
	var first *requirementdomain.Requirement
	for _, r := range seeds {
		created, _, err := eng.CreateRequirement(ctx, r, devAuditor)
		if err != nil {
			log.Fatalf("create requirement %q: %v", r.DocumentType, err)
		}
		if first == nil {
			first = created
		}
	}

	sub, _, err := eng.CreateSubmission(ctx, workflow.NewSubmission{
		RequirementID: first.ID,
		DocumentRef:   "s3://auditflow-dev/access-review-q1.pdf",
		Actor:         devAuditee,
	})
	if err != nil {
		log.Fatalf("create submission: %v", err)
	}

	due := now.AddDate(0, 0, 14)
	if _, _, err := eng.CreateFinding(ctx, workflow.NewFinding{
		AuditID:      devAuditID,
		Title:        "Shared administrator account",
		Description:  "Two operators share the break-glass account.",
		Severity:     findingdomain.SeverityMajor,
		SubmissionID: sub.ID,
		DueDate:      &due,
		Actor:        devAuditor,
	}); err != nil {
		log.Fatalf("create finding: %v", err)
	}

	log.Println("Seed complete.")
	log.Printf("  Audit: %s", devAuditID)
	log.Printf("  Auditor: %s (X-Actor-ID, X-Actor-Role: auditor)", devAuditor.ID)
	log.Printf("  Auditee: %s (X-Actor-ID, X-Actor-Role: auditee)", devAuditee.ID)
	log.Printf("  Submission awaiting validation: %s", sub.ID)
}
