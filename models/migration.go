package models

import (
	"log"

	"bitbucket.org/imfsl/ledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Borrower{}, &Client{},
		&Loan{}, &Repayment{}, &LoanProduct{}, &SavingsAccount{},
		&RawRecord{},
		&SyncRun{}, &SyncItem{},
		&ReconciliationSnapshot{},
		&Integration{},
		&WebhookEvent{}, &FunctionInvocation{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
