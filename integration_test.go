package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"pixwallet/internal/config"
	"pixwallet/internal/server"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer testcontainers.Container
	serverInstance    *server.Server
	serverPort        string
	baseURL           string
	client            *http.Client
	dbConnStr         string

	walletAID string
	walletBID string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	containerReq := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "pixwallet",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: containerReq,
		Started:          true,
	})
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	suite.dbConnStr = fmt.Sprintf("host=%s port=%s user=postgres password=password dbname=pixwallet sslmode=disable",
		host, port.Port())

	if err := server.ApplyMigrations(migrationsFS, suite.dbConnStr); err != nil {
		suite.T().Fatalf("Failed to run migrations: %s", err)
	}

	if err := suite.startApplicationServer(); err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}

	suite.client = &http.Client{
		Timeout: 30 * time.Second,
	}
}

func (suite *IntegrationTestSuite) startApplicationServer() error {
	cfg := &config.Config{
		DBHost:     "localhost",
		DBPort:     "5432",
		DBUser:     "postgres",
		DBPassword: "password",
		DBName:     "pixwallet",
		DBSSLMode:  "disable",
		ServerPort: "0",
	}

	ctx := context.Background()
	mappedPort, err := suite.postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}
	cfg.DBPort = mappedPort.Port()

	serverInstance, port, err := server.StartServer(cfg)
	if err != nil {
		return err
	}

	suite.serverInstance = serverInstance
	suite.serverPort = port
	suite.baseURL = "http://localhost:" + port

	return suite.waitForServerReady()
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}

	if suite.postgresContainer != nil {
		suite.postgresContainer.Terminate(ctx)
	}
}

// ------------------------------------------------------------------
// Helper methods for API calls.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) post(path string, reqBody interface{}, headers map[string]string) (*http.Response, string, error) {
	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequest(http.MethodPost, suite.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := suite.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	return resp, string(respBody), nil
}

func (suite *IntegrationTestSuite) get(path string) (*http.Response, string, error) {
	resp, err := suite.client.Get(suite.baseURL + path)
	if err != nil {
		return nil, "", err
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	return resp, string(respBody), nil
}

func (suite *IntegrationTestSuite) parseResponse(body string) (map[string]interface{}, error) {
	var response map[string]interface{}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		suite.T().Logf("Failed to parse response: %s", body)
		return nil, err
	}
	return response, nil
}

func (suite *IntegrationTestSuite) createWallet(userID string) (string, string) {
	resp, body, err := suite.post("/api/v1/wallets", map[string]interface{}{"userId": userID}, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode, "create wallet response: %s", body)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)
	data := response["data"].(map[string]interface{})
	return data["id"].(string), userID
}

func (suite *IntegrationTestSuite) registerPixKey(walletID, keyValue, keyType string) {
	path := fmt.Sprintf("/api/v1/wallets/%s/pix-keys", walletID)
	resp, body, err := suite.post(path, map[string]interface{}{
		"keyValue": keyValue,
		"keyType":  keyType,
	}, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode, "register pix key response: %s", body)
}

func (suite *IntegrationTestSuite) deposit(walletID, amount string) {
	path := fmt.Sprintf("/api/v1/wallets/%s/deposit", walletID)
	resp, body, err := suite.post(path, map[string]interface{}{
		"amount":      amount,
		"description": "integration test deposit",
	}, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode, "deposit response: %s", body)
}

func (suite *IntegrationTestSuite) getBalance(walletID string) string {
	resp, body, err := suite.get(fmt.Sprintf("/api/v1/wallets/%s/balance", walletID))
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode, "balance response: %s", body)

	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)
	data := response["data"].(map[string]interface{})
	return data["balance"].(string)
}

func (suite *IntegrationTestSuite) transfer(idempotencyKey, fromWalletID, toPixKey, amount string) (*http.Response, map[string]interface{}, error) {
	resp, body, err := suite.post("/api/v1/pix/transfers", map[string]interface{}{
		"fromWalletId": fromWalletID,
		"toPixKey":     toPixKey,
		"amount":       amount,
	}, map[string]string{"Idempotency-Key": idempotencyKey})
	if err != nil {
		return resp, nil, err
	}

	response, parseErr := suite.parseResponse(body)
	return resp, response, parseErr
}

func (suite *IntegrationTestSuite) webhook(endToEndID, eventID, eventType string) (*http.Response, string, error) {
	return suite.post("/api/v1/pix/webhook", map[string]interface{}{
		"endToEndId": endToEndID,
		"eventId":    eventID,
		"eventType":  eventType,
	}, nil)
}

// ------------------------------------------------------------------
// Steps, executed in order by TestFlow.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	resp, body, err := suite.get("/health")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var healthResp map[string]interface{}
	err = json.Unmarshal([]byte(body), &healthResp)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "healthy", healthResp["status"])
}

func (suite *IntegrationTestSuite) stepCreateWalletsAndKeys() {
	walletAID, _ := suite.createWallet("user-" + uuid.New().String())
	walletBID, _ := suite.createWallet("user-" + uuid.New().String())

	suite.walletAID = walletAID
	suite.walletBID = walletBID

	suite.registerPixKey(walletAID, "sender-"+uuid.New().String()+"@example.com", "EMAIL")
	suite.registerPixKey(walletBID, "receiver-"+uuid.New().String()+"@example.com", "EMAIL")

	suite.deposit(walletAID, "1000.50")

	assert.Equal(suite.T(), "1000.50", suite.getBalance(walletAID))
	assert.Equal(suite.T(), "0.00", suite.getBalance(walletBID))
}

func (suite *IntegrationTestSuite) stepSuccessfulTransferLifecycle() {
	receiverKey := "receiver-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletBID, receiverKey, "EMAIL")

	idempotencyKey := uuid.New().String()
	resp, response, err := suite.transfer(idempotencyKey, suite.walletAID, receiverKey, "200.50")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	data := response["data"].(map[string]interface{})
	assert.Equal(suite.T(), "PENDING", data["status"])
	endToEndID := data["endToEndId"].(string)
	assert.NotEmpty(suite.T(), endToEndID)

	// Debit happens immediately on initiation.
	assert.Equal(suite.T(), "800.00", suite.getBalance(suite.walletAID))
	assert.Equal(suite.T(), "0.00", suite.getBalance(suite.walletBID))

	// Bank confirms the transfer via webhook.
	webhookResp, webhookBody, err := suite.webhook(endToEndID, uuid.New().String(), "CONFIRMED")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, webhookResp.StatusCode, "webhook response: %s", webhookBody)

	assert.Equal(suite.T(), "800.00", suite.getBalance(suite.walletAID))
	assert.Equal(suite.T(), "200.50", suite.getBalance(suite.walletBID))
}

func (suite *IntegrationTestSuite) stepRejectedTransferRefunds() {
	receiverKey := "receiver-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletBID, receiverKey, "EMAIL")

	balanceBefore := suite.getBalance(suite.walletAID)

	idempotencyKey := uuid.New().String()
	resp, response, err := suite.transfer(idempotencyKey, suite.walletAID, receiverKey, "50.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	data := response["data"].(map[string]interface{})
	endToEndID := data["endToEndId"].(string)

	webhookResp, webhookBody, err := suite.webhook(endToEndID, uuid.New().String(), "REJECTED")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, webhookResp.StatusCode, "webhook response: %s", webhookBody)

	assert.Equal(suite.T(), balanceBefore, suite.getBalance(suite.walletAID))
}

func (suite *IntegrationTestSuite) stepIdempotentTransferInitiation() {
	receiverKey := "receiver-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletBID, receiverKey, "EMAIL")

	idempotencyKey := uuid.New().String()

	resp1, response1, err := suite.transfer(idempotencyKey, suite.walletAID, receiverKey, "10.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp1.StatusCode)
	data1 := response1["data"].(map[string]interface{})
	endToEndID1 := data1["endToEndId"].(string)

	balanceAfterFirst := suite.getBalance(suite.walletAID)

	resp2, response2, err := suite.transfer(idempotencyKey, suite.walletAID, receiverKey, "10.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp2.StatusCode)
	data2 := response2["data"].(map[string]interface{})
	endToEndID2 := data2["endToEndId"].(string)

	assert.Equal(suite.T(), endToEndID1, endToEndID2, "replayed request should return the same transfer")
	assert.Equal(suite.T(), balanceAfterFirst, suite.getBalance(suite.walletAID), "balance must not change on replay")
}

func (suite *IntegrationTestSuite) stepIdempotentWebhookDelivery() {
	receiverKey := "receiver-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletBID, receiverKey, "EMAIL")

	idempotencyKey := uuid.New().String()
	resp, response, err := suite.transfer(idempotencyKey, suite.walletAID, receiverKey, "25.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	data := response["data"].(map[string]interface{})
	endToEndID := data["endToEndId"].(string)

	eventID := uuid.New().String()

	_, _, err = suite.webhook(endToEndID, eventID, "CONFIRMED")
	assert.NoError(suite.T(), err)
	balanceAfterFirstEvent := suite.getBalance(suite.walletBID)

	// Bank redelivers the same event; must not double-credit.
	_, _, err = suite.webhook(endToEndID, eventID, "CONFIRMED")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), balanceAfterFirstEvent, suite.getBalance(suite.walletBID))
}

func (suite *IntegrationTestSuite) stepInsufficientBalance() {
	receiverKey := "receiver-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletBID, receiverKey, "EMAIL")

	resp, response, err := suite.transfer(uuid.New().String(), suite.walletAID, receiverKey, "10000.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	errBody := response["error"].(map[string]interface{})
	assert.Equal(suite.T(), "INSUFFICIENT_FUNDS", errBody["code"])
}

func (suite *IntegrationTestSuite) stepDestinationKeyNotFound() {
	resp, response, err := suite.transfer(uuid.New().String(), suite.walletAID, "nobody-"+uuid.New().String()+"@example.com", "10.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	errBody := response["error"].(map[string]interface{})
	assert.Equal(suite.T(), "DESTINATION_NOT_FOUND", errBody["code"])
}

func (suite *IntegrationTestSuite) stepAmountOutOfRange() {
	receiverKey := "receiver-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletBID, receiverKey, "EMAIL")

	resp, response, err := suite.transfer(uuid.New().String(), suite.walletAID, receiverKey, "30000.00")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	errBody := response["error"].(map[string]interface{})
	assert.Equal(suite.T(), "AMOUNT_OUT_OF_RANGE", errBody["code"])
}

func (suite *IntegrationTestSuite) stepDuplicatePixKeyRegistration() {
	dupKey := "dup-" + uuid.New().String() + "@example.com"
	suite.registerPixKey(suite.walletAID, dupKey, "EMAIL")

	path := fmt.Sprintf("/api/v1/wallets/%s/pix-keys", suite.walletBID)
	resp, body, err := suite.post(path, map[string]interface{}{
		"keyValue": dupKey,
		"keyType":  "EMAIL",
	}, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode, "register pix key response: %s", body)
}

func (suite *IntegrationTestSuite) stepWalletNotFound() {
	resp, body, err := suite.get("/api/v1/wallets/" + uuid.New().String() + "/balance")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode, "balance response: %s", body)
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (suite *IntegrationTestSuite) TestFlow() {
	suite.Run("HealthCheck", func() { suite.stepHealthCheck() })
	suite.Run("CreateWalletsAndKeys", func() { suite.stepCreateWalletsAndKeys() })
	suite.Run("SuccessfulTransferLifecycle", func() { suite.stepSuccessfulTransferLifecycle() })
	suite.Run("RejectedTransferRefunds", func() { suite.stepRejectedTransferRefunds() })
	suite.Run("IdempotentTransferInitiation", func() { suite.stepIdempotentTransferInitiation() })
	suite.Run("IdempotentWebhookDelivery", func() { suite.stepIdempotentWebhookDelivery() })
	suite.Run("InsufficientBalance", func() { suite.stepInsufficientBalance() })
	suite.Run("DestinationKeyNotFound", func() { suite.stepDestinationKeyNotFound() })
	suite.Run("AmountOutOfRange", func() { suite.stepAmountOutOfRange() })
	suite.Run("DuplicatePixKeyRegistration", func() { suite.stepDuplicatePixKeyRegistration() })
	suite.Run("WalletNotFound", func() { suite.stepWalletNotFound() })
}
