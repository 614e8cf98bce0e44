package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/models"
	"github.com/mmdatafocus/allocation_backend/utils"
)

func TestAllocationRunLifecycleAgainstWarehouseSupply(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "allocation_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	// History rows pick the user and correlation id off the context.
	ctx = utils.SetCorrelationIdInContext(ctx, "it-lifecycle-001")
	ctx = utils.SetUserNameInContext(ctx, "Test")

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// Seed a division with two stores, one style with one variant, and
	// warehouse supply 20 - 3 reserved = 17 available.
	division := models.Division{DivisionCode: "MENS", DivisionName: "Menswear"}
	if err := db.WithContext(ctx).Create(&division).Error; err != nil {
		t.Fatalf("create division: %v", err)
	}
	for _, s := range []models.Store{
		{StoreCode: "ST001", StoreName: "Downtown", StoreGrade: "A", DivisionId: division.ID, IsActive: utils.NewTrue()},
		{StoreCode: "ST002", StoreName: "Junction", StoreGrade: "B", DivisionId: division.ID, IsActive: utils.NewTrue()},
	} {
		if _, err := models.CreateStore(ctx, s); err != nil {
			t.Fatalf("CreateStore %s: %v", s.StoreCode, err)
		}
	}
	article := models.GenArticle{
		GenArticleCode: "TS-001",
		GenArticleName: "Basic Tee",
		DivisionId:     division.ID,
		Season:         "SS26",
		IsActive:       utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&article).Error; err != nil {
		t.Fatalf("create gen article: %v", err)
	}
	variant := models.VariantArticle{
		VariantCode:  "TS-001-RED-M",
		GenArticleId: article.ID,
		SizeCode:     "M",
		ColorCode:    "RED",
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&variant).Error; err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if err := db.WithContext(ctx).Create(&models.WarehouseStock{
		WarehouseCode: models.DefaultWarehouseCode,
		VariantCode:   variant.VariantCode,
		StockQty:      20,
		ReservedQty:   3,
	}).Error; err != nil {
		t.Fatalf("create warehouse stock: %v", err)
	}

	// 1) Run: default ratios are A=1.0, B=0.7 so 17 units split 10/7.
	run, err := models.RunAllocation(ctx, models.NewAllocation{
		AllocationName: "SS26 initial drop",
		AllocationType: models.AllocationTypeInitial,
		Basis:          models.AllocationBasisRatio,
		DivisionId:     division.ID,
		Season:         "SS26",
		CreatedBy:      "Test",
	})
	if err != nil {
		t.Fatalf("RunAllocation: %v", err)
	}
	if run.Status != models.AllocationStatusDraft {
		t.Fatalf("expected run status Draft; got %s", run.Status)
	}
	if run.TotalQty != 17 || run.TotalStores != 2 || run.TotalOptions != 1 {
		t.Fatalf("expected totals 17/2/1; got %d/%d/%d", run.TotalQty, run.TotalStores, run.TotalOptions)
	}

	// 2) Summary reflects the grade split.
	summary, err := models.GetAllocationSummary(ctx, run.AllocationId)
	if err != nil {
		t.Fatalf("GetAllocationSummary: %v", err)
	}
	if summary.TotalQty != 17 {
		t.Fatalf("expected summary total 17; got %d", summary.TotalQty)
	}
	if summary.QtyByGrade["A"] != 10 || summary.QtyByGrade["B"] != 7 {
		t.Fatalf("expected grade split A=10 B=7; got %+v", summary.QtyByGrade)
	}

	// 3) The run audit row records the basis it was computed with.
	histories, err := models.GetAllocationHistory(ctx, run.AllocationId)
	if err != nil {
		t.Fatalf("GetAllocationHistory: %v", err)
	}
	var createRow *models.History
	for _, h := range histories {
		if h.ActionType == models.HistoryActionCreate {
			createRow = h
			break
		}
	}
	if createRow == nil {
		t.Fatalf("expected a Create history row; got %d rows", len(histories))
	}
	if !strings.Contains(createRow.Description, "basis RATIO") {
		t.Fatalf("expected create history to name the basis; got %q", createRow.Description)
	}

	// 4) Overrides on the Draft: bump the A store, skip an unknown pair.
	override, err := models.ApplyAllocationOverrides(ctx, run.AllocationId, []models.AllocationOverrideInput{
		{StoreCode: "ST001", VariantCode: variant.VariantCode, OverrideQty: intPtr(12)},
		{StoreCode: "ST999", VariantCode: variant.VariantCode, OverrideQty: intPtr(5)},
	}, "Test")
	if err != nil {
		t.Fatalf("ApplyAllocationOverrides: %v", err)
	}
	if override.Applied != 1 || override.Skipped != 1 {
		t.Fatalf("expected 1 applied / 1 skipped; got %d/%d", override.Applied, override.Skipped)
	}
	if override.TotalQty != 19 {
		t.Fatalf("expected total 19 after override; got %d", override.TotalQty)
	}

	// 5) Approve then execute; execute must write the outbox row.
	approved, err := models.ApproveAllocation(ctx, run.AllocationId, "Manager")
	if err != nil {
		t.Fatalf("ApproveAllocation: %v", err)
	}
	if approved.Status != models.AllocationStatusApproved {
		t.Fatalf("expected status Approved; got %s", approved.Status)
	}
	executed, err := models.ExecuteAllocation(ctx, run.AllocationId, "Manager")
	if err != nil {
		t.Fatalf("ExecuteAllocation: %v", err)
	}
	if executed.Status != models.AllocationStatusExecuted || executed.ExecutedAt == nil {
		t.Fatalf("expected status Executed with executed_at set; got %+v", executed)
	}
	var dispatch models.DispatchRecord
	if err := db.WithContext(ctx).
		Where("allocation_id = ?", run.AllocationId).
		Order("id DESC").
		First(&dispatch).Error; err != nil {
		t.Fatalf("expected dispatch outbox record for executed allocation: %v", err)
	}
	if dispatch.PublishStatus != models.DispatchPublishPending {
		t.Fatalf("expected outbox row PENDING; got %s", dispatch.PublishStatus)
	}
	if dispatch.CorrelationId != "it-lifecycle-001" {
		t.Fatalf("expected outbox row to carry the correlation id; got %q", dispatch.CorrelationId)
	}

	// 6) Executed allocations are immutable.
	if _, err := models.CancelAllocation(ctx, run.AllocationId, "Test", "changed our minds"); err == nil {
		t.Fatalf("expected cancel of an executed allocation to fail")
	} else if !utils.IsBusinessError(err) {
		t.Fatalf("expected a business error cancelling an executed allocation; got %v", err)
	}
	if _, err := models.ApplyAllocationOverrides(ctx, run.AllocationId, []models.AllocationOverrideInput{
		{StoreCode: "ST001", VariantCode: variant.VariantCode, OverrideQty: intPtr(1)},
	}, "Test"); err == nil {
		t.Fatalf("expected overrides on an executed allocation to fail")
	} else if !utils.IsBusinessError(err) {
		t.Fatalf("expected a business error overriding an executed allocation; got %v", err)
	}

	// 7) A cancelled draft is terminal: it cannot be approved afterwards.
	second, err := models.RunAllocation(ctx, models.NewAllocation{
		AllocationName: "SS26 second drop",
		AllocationType: models.AllocationTypeReplenishment,
		Basis:          models.AllocationBasisRatio,
		DivisionId:     division.ID,
		Season:         "SS26",
		CreatedBy:      "Test",
	})
	if err != nil {
		t.Fatalf("RunAllocation(second): %v", err)
	}
	cancelled, err := models.CancelAllocation(ctx, second.AllocationId, "Test", "superseded")
	if err != nil {
		t.Fatalf("CancelAllocation(second): %v", err)
	}
	if cancelled.Status != models.AllocationStatusCancelled {
		t.Fatalf("expected status Cancelled; got %s", cancelled.Status)
	}
	if _, err := models.ApproveAllocation(ctx, second.AllocationId, "Manager"); err == nil {
		t.Fatalf("expected approve of a cancelled allocation to fail")
	} else if !utils.IsBusinessError(err) {
		t.Fatalf("expected a business error approving a cancelled allocation; got %v", err)
	}
}

func intPtr(v int) *int { return &v }

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("allocation-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("allocation-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=allocation_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
