package models

type JobInput struct {
	ContactID string `json:"contactId"`
	Phone     string `json:"phone"`
}

// Submission is a request to process a campaign's contact list.
type Submission struct {
	CampaignID string     `json:"campaignId"`
	UserID     string     `json:"userId"`
	Jobs       []JobInput `json:"jobs"`
}

type SubmissionResponse struct {
	CampaignID string         `json:"campaignId"`
	Status     CampaignStatus `json:"status"`
	TotalJobs  int            `json:"totalJobs"`
	Processed  int            `json:"processed"`
	Failed     int            `json:"failed"`
	Message    string         `json:"message"`
}
