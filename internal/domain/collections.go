package domain

import "strings"

// Collection names
const (
	CollectionTenants                = "tenants"
	CollectionUsers                  = "users"
	CollectionUserTenantAccess       = "userTenantAccess"
	CollectionUnits                  = "units"
	CollectionExpenses               = "expenses"
	CollectionVendors                = "vendors"
	CollectionVendorContracts        = "vendorContracts"
	CollectionVendorHistory          = "vendorHistory"
	CollectionQuotes                 = "quotes"
	CollectionMeetings               = "meetings"
	CollectionDocuments              = "documents"
	CollectionDocumentFolders        = "documentFolders"
	CollectionRepairRequests         = "repairRequests"
	CollectionMaintenanceProjects    = "maintenanceProjects"
	CollectionAnnouncements          = "announcements"
	CollectionMessages               = "messages"
	CollectionNotifications          = "notifications"
	CollectionDismissedNotifications = "dismissedNotifications"
	CollectionFunds                  = "funds"
	CollectionPaymentReminders       = "paymentReminders"
	CollectionPendingRegistrations   = "pendingRegistrations"
	CollectionMailOutbox             = "mailOutbox"

	SubcollectionFundTransactions = "transactions"
)

// FieldTenantID is the foreign key every tenant-owned record carries.
const FieldTenantID = "tenantId"

// Dependent declares a record kind owned by a tenant. Children are
// sub-collections nested under each matching parent document; they are
// removed with the parent regardless of their own fields.
type Dependent struct {
	Collection string
	ForeignKey string
	Children   []string
}

// TenantDependents is the single list of record kinds removed together with
// a tenant. A new tenant-owned collection must be added here.
var TenantDependents = []Dependent{
	{Collection: CollectionUnits, ForeignKey: FieldTenantID},
	{Collection: CollectionExpenses, ForeignKey: FieldTenantID},
	{Collection: CollectionVendors, ForeignKey: FieldTenantID},
	{Collection: CollectionVendorContracts, ForeignKey: FieldTenantID},
	{Collection: CollectionVendorHistory, ForeignKey: FieldTenantID},
	{Collection: CollectionQuotes, ForeignKey: FieldTenantID},
	{Collection: CollectionMeetings, ForeignKey: FieldTenantID},
	{Collection: CollectionDocuments, ForeignKey: FieldTenantID},
	{Collection: CollectionDocumentFolders, ForeignKey: FieldTenantID},
	{Collection: CollectionRepairRequests, ForeignKey: FieldTenantID},
	{Collection: CollectionMaintenanceProjects, ForeignKey: FieldTenantID},
	{Collection: CollectionAnnouncements, ForeignKey: FieldTenantID},
	{Collection: CollectionMessages, ForeignKey: FieldTenantID},
	{Collection: CollectionNotifications, ForeignKey: FieldTenantID},
	{Collection: CollectionDismissedNotifications, ForeignKey: FieldTenantID},
	{Collection: CollectionFunds, ForeignKey: FieldTenantID, Children: []string{SubcollectionFundTransactions}},
	{Collection: CollectionPaymentReminders, ForeignKey: FieldTenantID},
	{Collection: CollectionUserTenantAccess, ForeignKey: FieldTenantID},
	{Collection: CollectionMailOutbox, ForeignKey: FieldTenantID},
}

// SubcollectionPath addresses a sub-collection nested under a parent document,
// e.g. funds/{fundId}/transactions.
func SubcollectionPath(parent, parentID, child string) string {
	return strings.Join([]string{parent, parentID, child}, "/")
}

// FundTransactionsPath returns the transactions sub-collection for a fund.
func FundTransactionsPath(fundID string) string {
	return SubcollectionPath(CollectionFunds, fundID, SubcollectionFundTransactions)
}
