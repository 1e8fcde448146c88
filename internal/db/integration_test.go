package db_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bankcore/ledger-service/internal/db"
	"github.com/bankcore/ledger-service/internal/domain"
	"github.com/bankcore/ledger-service/internal/events"
)

// TestLedgerIntegration is a full end-to-end integration test. It spins up
// PostgreSQL and RabbitMQ containers, applies the schema, runs ledger
// operations through the real repositories and verifies balances, history
// and published events.
func TestLedgerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, dbURL := startPostgresContainer(t, ctx)
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	rabbitContainer, rabbitURL := startRabbitMQContainer(t, ctx)
	defer func() {
		if err := rabbitContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	}()

	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	exchange := "ledger.operations"
	routingKey := "ledger.operations.completed"
	publisher, err := events.NewRabbitPublisher(rabbitURL, exchange, routingKey)
	if err != nil {
		t.Fatalf("failed to create rabbitmq publisher: %v", err)
	}
	defer publisher.Close()

	accountRepo := db.NewAccountRepository(pool.Pool)
	operationRepo := db.NewOperationRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)
	ledger := domain.NewLedgerService(accountRepo, operationRepo, txManager, publisher, nil, zerolog.Nop())

	eventChan := make(chan map[string]interface{}, 16)
	stopConsumer := startEventConsumer(t, rabbitURL, exchange, routingKey, eventChan)
	defer stopConsumer()

	// Give the consumer a moment to start
	time.Sleep(500 * time.Millisecond)

	// Seed one current and one saving account.
	current, err := domain.NewCurrentAccount(uuid.New(), uuid.New(), mustDec(t, "100.00"), mustDec(t, "0"))
	if err != nil {
		t.Fatal(err)
	}
	saving, err := domain.NewSavingAccount(uuid.New(), uuid.New(), mustDec(t, "0"), mustDec(t, "0.02"))
	if err != nil {
		t.Fatal(err)
	}
	if err := accountRepo.Create(ctx, current); err != nil {
		t.Fatalf("failed to create current account: %v", err)
	}
	if err := accountRepo.Create(ctx, saving); err != nil {
		t.Fatalf("failed to create saving account: %v", err)
	}

	// Transfer 50 from the current to the saving account.
	from, to, err := ledger.Transfer(ctx, current.ID, saving.ID, mustDec(t, "50"), "seed transfer")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !from.Balance.Equal(mustDec(t, "50")) {
		t.Errorf("expected source balance 50, got %s", from.Balance)
	}
	if !to.Balance.Equal(mustDec(t, "50")) {
		t.Errorf("expected destination balance 50, got %s", to.Balance)
	}

	// Both halves are on the log, one DEBIT and one CREDIT.
	fromOps, err := ledger.ListOperations(ctx, current.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fromOps) != 1 || fromOps[0].Type != domain.OperationDebit {
		t.Fatalf("expected one DEBIT on source, got %v", fromOps)
	}
	toOps, err := ledger.ListOperations(ctx, saving.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(toOps) != 1 || toOps[0].Type != domain.OperationCredit {
		t.Fatalf("expected one CREDIT on destination, got %v", toOps)
	}

	// Two operation.completed events arrive on the exchange.
	types := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-eventChan:
			if event["eventType"] != "operation.completed" {
				t.Errorf("expected eventType operation.completed, got %v", event["eventType"])
			}
			if event["amount"] != "50" {
				t.Errorf("expected amount 50, got %v", event["amount"])
			}
			types[fmt.Sprint(event["type"])]++
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for operation events")
		}
	}
	if types["DEBIT"] != 1 || types["CREDIT"] != 1 {
		t.Errorf("expected one DEBIT and one CREDIT event, got %v", types)
	}

	// An insufficient transfer leaves both accounts untouched.
	if _, _, err := ledger.Transfer(ctx, current.ID, saving.ID, mustDec(t, "1000"), "too much"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	fresh, err := accountRepo.GetByID(ctx, current.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !fresh.Balance.Equal(mustDec(t, "50")) {
		t.Errorf("failed transfer changed source balance: %s", fresh.Balance)
	}

	// Concurrent debits serialize behind the row lock: with 50 available and
	// ten 10.00 debits, exactly five succeed.
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, current.ID, mustDec(t, "10"), "concurrent")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientFunds):
			rejected++
		default:
			t.Errorf("unexpected concurrent debit error: %v", err)
		}
	}
	if succeeded != 5 || rejected != 5 {
		t.Errorf("expected 5 successes and 5 rejections, got %d/%d", succeeded, rejected)
	}

	final, err := accountRepo.GetByID(ctx, current.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !final.Balance.Equal(mustDec(t, "0")) {
		t.Errorf("expected final balance 0, got %s", final.Balance)
	}

	// Paged history matches the full list.
	list, err := ledger.ListOperations(ctx, current.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 6 {
		t.Fatalf("expected 6 operations on source, got %d", len(list))
	}

	page0, total, err := ledger.PageOperations(ctx, current.ID, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	page1, _, err := ledger.PageOperations(ctx, current.ID, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if total != 6 {
		t.Errorf("expected total 6, got %d", total)
	}
	combined := append(append([]*domain.AccountOperation(nil), page0...), page1...)
	if len(combined) != 6 {
		t.Fatalf("expected pages to cover all 6 operations, got %d", len(combined))
	}
	for i, op := range combined {
		if op.ID != list[i].ID {
			t.Errorf("page concatenation diverges from list at index %d", i)
		}
	}
}

func mustDec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("invalid decimal %q: %v", value, err)
	}
	return d
}

// startPostgresContainer starts a PostgreSQL testcontainer and returns the connection URL.
func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	return container, dbURL
}

// startRabbitMQContainer starts a RabbitMQ testcontainer and returns the AMQP URL.
func startRabbitMQContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForLog("Server startup complete"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get rabbitmq host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatalf("failed to get rabbitmq port: %v", err)
	}

	rabbitURL := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	return container, rabbitURL
}

// startEventConsumer listens on the exchange and forwards decoded events.
func startEventConsumer(t *testing.T, rabbitURL, exchange, routingKey string, eventChan chan map[string]interface{}) func() {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		t.Fatalf("failed to connect to rabbitmq: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		t.Fatalf("failed to open channel: %v", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to declare exchange: %v", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to declare queue: %v", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to bind queue: %v", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to start consuming: %v", err)
	}

	go func() {
		for msg := range msgs {
			var event map[string]interface{}
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				t.Logf("failed to unmarshal event: %v", err)
				continue
			}
			eventChan <- event
		}
	}()

	return func() {
		ch.Close()
		conn.Close()
	}
}
