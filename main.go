package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"thefesta/config"
	"thefesta/cron"
	"thefesta/database"
	bookingRepo "thefesta/database/repository/booking"
	idemRepo "thefesta/database/repository/idempotency"
	invoiceRepo "thefesta/database/repository/invoice"
	ledgerRepo "thefesta/database/repository/ledger"
	notificationRepo "thefesta/database/repository/notification"
	paymentRepo "thefesta/database/repository/payment"
	vendorRepo "thefesta/database/repository/vendor"
	"thefesta/handlers"
	"thefesta/routes"
	notification "thefesta/services/notification"
	payment "thefesta/services/payment"
	"thefesta/utils"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitLockClient()

	// repositories.
	payments := paymentRepo.NewMongoPaymentRepo()
	invoices := invoiceRepo.NewMongoInvoiceRepo()
	bookings := bookingRepo.NewMongoBookingRepo()
	vendors := vendorRepo.NewMongoVendorRepo()
	notifications := notificationRepo.NewMongoNotificationRepo()
	idemRecords := idemRepo.NewMongoIdemRepo(time.Duration(config.AppConfig.IdempotencyTTLHours) * time.Hour)
	transactor := ledgerRepo.NewMongoTransactor()

	// services.
	gateway := payment.NewAfricasTalkingGateway(payment.GatewayConfig{
		BaseURL:     config.AppConfig.ATBaseURL,
		APIKey:      config.AppConfig.ATAPIKey,
		Username:    config.AppConfig.ATUsername,
		Environment: config.AppConfig.ATEnvironment,
		Products: map[string]string{
			"TZS": config.AppConfig.ATProductTZS,
			"KES": config.AppConfig.ATProductKES,
			"UGX": config.AppConfig.ATProductUGX,
		},
		Timeout: time.Duration(config.AppConfig.GatewayTimeout) * time.Second,
	}, logger)

	notifier := notification.NewSMSNotificationService(notification.SMSConfig{
		BaseURL:  config.AppConfig.ATSMSURL,
		APIKey:   config.AppConfig.ATAPIKey,
		Username: config.AppConfig.ATUsername,
		SenderID: config.AppConfig.ATSMSFrom,
	}, notifications, logger)

	guard := payment.NewGuard(utils.GetLockClient(), idemRecords, transactor, logger)
	reconciler := payment.NewReconciler(payments, invoices, bookings, notifications, payment.DefaultBookingPolicy, logger)
	processor := payment.NewProcessor(gateway, payments, invoices, vendors, guard, reconciler, notifier, logger)

	// reconciliation queue: webhook and poller produce, one worker consumes.
	tasks := cron.NewTaskClient()
	defer tasks.Close()
	cron.InitReconcileWorker(processor, gateway, tasks, logger)

	pollCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	poller := cron.NewPoller(
		payments,
		processor,
		notifier,
		tasks,
		time.Duration(config.AppConfig.PollIntervalSeconds)*time.Second,
		time.Duration(config.AppConfig.PollStaleAfterSeconds)*time.Second,
		logger,
	)
	poller.Start(pollCtx)

	utils.StartHealthMonitor(utils.GetCacheClient(), utils.GetLockClient(), database.MongoClient)

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())

	handlerBundle := &handlers.HandlerBundle{
		Processor:     processor,
		Tasks:         tasks,
		Notifier:      notifier,
		WebhookSecret: config.AppConfig.WebhookSecret,
	}
	routes.RegisterRoutes(router, handlerBundle)

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	stopPoller()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
