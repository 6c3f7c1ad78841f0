package catalog

// Endpoint names.
const (
	Accounts          = "accounts"
	Calls             = "calls"
	Companies         = "companies"
	FormSubmissions   = "form_submissions"
	Integrations      = "integrations"
	Tags              = "tags"
	Trackers          = "trackers"
	Users             = "users"
	TextMessages      = "text_messages"
	Notifications     = "notifications"
	OutboundCallerIDs = "outbound_caller_ids"
)

// Default returns the registry of all CallRail v3 endpoints.
func Default() *Registry {
	return NewRegistry(
		Endpoint{
			Name:   Accounts,
			Path:   "/v3/a.json",
			Fields: []string{"id", "name", "created_at"},
			OptionalFields: []string{
				"numeric_id", "inbound_recording_enabled", "outbound_recording_enabled",
				"hipaa_account", "features", "outbound_recording_on_by_default",
				"masked_id", "outbound_greeting_enabled", "agency_in_trial",
				"has_zuora_account", "brand_status", "approaching_cold_outbound_limit",
				"allow_cold_outbound_texting", "allow_texting", "ten_dlc_effective_date",
				"has_unique_subaccount",
			},
		},
		Endpoint{
			Name: Calls,
			Path: "/v3/a/{account_id}/calls.json",
			Fields: []string{
				"id", "answered", "business_phone_number", "customer_city",
				"customer_country", "customer_name", "customer_phone_number",
				"customer_state", "direction", "duration", "created_at",
				"start_time", "tracking_phone_number", "source", "source_name",
			},
			OptionalFields: []string{
				"recording", "recording_duration", "voicemail", "note",
				"lead_status", "value", "formatted_customer_location",
				"formatted_business_location", "formatted_customer_name_or_phone_number",
				"company_id", "device_type", "first_call", "prior_calls",
				"total_calls", "utm_source", "utm_medium", "utm_term",
				"utm_content", "utm_campaign", "utma", "utmb", "utmc",
				"utmv", "utmz", "ga", "referrer", "referring_url", "landing_page_url",
				"last_requested_url", "ip_address", "search_keywords", "web_session_id",
				"tags", "agent_email", "call_type", "company_name", "company_time_zone",
				"formatted_call_type", "formatted_duration",
				"formatted_tracking_phone_number", "formatted_tracking_source",
				"formatted_value", "good_lead_call_id", "good_lead_call_time",
				"note_updated_at", "tracker_id",
				"transcription", "keywords_spotted", "call_highlights",
			},
			Pagination:   PaginationCursor,
			NeedsAccount: true,
		},
		Endpoint{
			Name:   Companies,
			Path:   "/v3/a/{account_id}/companies.json",
			Fields: []string{"id", "name", "status", "time_zone", "created_at"},
			OptionalFields: []string{
				"disabled_at", "dni_active", "script_url", "callscore_enabled",
				"lead_scoring_enabled", "swap_exclude_jquery", "swap_ppc_override",
				"swap_landing_override", "swap_cookie_duration", "swap_cookie_duration_unit",
				"callscribe_enabled", "keyword_spotting_enabled", "form_capture",
				"verified_caller_ids", "masked_id",
			},
			NeedsAccount: true,
		},
		Endpoint{
			Name: FormSubmissions,
			Path: "/v3/a/{account_id}/form_submissions.json",
			Fields: []string{
				"id", "company_id", "person_id", "submitter_id", "content",
				"referrer", "referring_url", "landing_page_url", "last_requested_url",
				"created_at", "updated_at",
			},
			OptionalFields: []string{
				"formatted_submitter_phone_number", "utm_source", "utm_medium",
				"utm_term", "utm_content", "utm_campaign", "utma", "utmb",
				"utmc", "utmv", "utmz", "ga", "search_keywords", "ip_address",
				"tags", "value", "lead_status", "note", "note_updated_at",
			},
			NeedsAccount: true,
		},
		Endpoint{
			Name:           Integrations,
			Path:           "/v3/a/{account_id}/integrations.json",
			Fields:         []string{"id", "name", "state", "created_at", "updated_at"},
			OptionalFields: []string{"integration_data"},
			NeedsAccount:   true,
		},
		Endpoint{
			Name: Tags,
			Path: "/v3/a/{account_id}/tags.json",
			Fields: []string{
				"id", "name", "tag_level", "color", "background_color",
				"created_at", "updated_at",
			},
			OptionalFields:     []string{"company_id"},
			NeedsAccount:       true,
			SkipFieldSelection: true,
		},
		Endpoint{
			Name: Trackers,
			Path: "/v3/a/{account_id}/trackers.json",
			Fields: []string{
				"id", "name", "type", "status", "source", "tracking_number",
				"formatted_tracking_number", "created_at", "updated_at",
			},
			OptionalFields: []string{
				"company_id", "landing_page_url", "referrer", "referrer_domain",
				"utm_source", "utm_medium", "utm_term", "utm_content", "utm_campaign",
				"destination_number", "formatted_destination_number", "whisper_message",
				"record_calls", "sms_enabled", "swap_exclude_jquery_selector",
				"swap_ppc_override", "swap_landing_override", "swap_cookie_duration",
			},
			NeedsAccount: true,
		},
		Endpoint{
			Name: Users,
			Path: "/v3/a/{account_id}/users.json",
			Fields: []string{
				"id", "email", "first_name", "last_name", "role", "created_at", "updated_at",
			},
			OptionalFields: []string{"avatar_url", "is_account_admin"},
			NeedsAccount:   true,
		},
		Endpoint{
			Name: TextMessages,
			Path: "/v3/a/{account_id}/text_messages.json",
			Fields: []string{
				"id", "company_id", "direction", "content", "customer_phone_number",
				"business_phone_number", "created_at", "updated_at",
			},
			OptionalFields: []string{
				"customer_name", "formatted_customer_phone_number",
				"formatted_business_phone_number", "conversation_id", "lead_status",
				"value", "note", "note_updated_at", "tags",
			},
			NeedsAccount:       true,
			SkipFieldSelection: true,
		},
		Endpoint{
			Name: Notifications,
			Path: "/v3/a/{account_id}/notifications.json",
			Fields: []string{
				"id", "type", "target", "webhook_url", "created_at", "updated_at",
			},
			OptionalFields: []string{"company_id", "enabled", "oauth_application_id"},
			NeedsAccount:   true,
		},
		Endpoint{
			Name: OutboundCallerIDs,
			Path: "/v3/a/{account_id}/outbound_caller_ids.json",
			Fields: []string{
				"id", "phone_number", "formatted_phone_number", "name",
				"created_at", "updated_at",
			},
			OptionalFields:     []string{"company_id"},
			NeedsAccount:       true,
			SkipFieldSelection: true,
		},
	)
}
