package converter

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
)

// canvasPlatform is the vendor extension whose settings we understand
const canvasPlatform = "canvas.instructure.com"

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlExtension struct {
	Platform   string        `xml:"platform,attr"`
	Properties []xmlProperty `xml:"property"`
}

type xmlBasicLTILink struct {
	Title           string         `xml:"title"`
	Description     string         `xml:"description"`
	LaunchURL       string         `xml:"launch_url"`
	SecureLaunchURL string         `xml:"secure_launch_url"`
	Custom          []xmlProperty  `xml:"custom>property"`
	Extensions      []xmlExtension `xml:"extensions"`
}

// SecurityWarning is the message recorded for tools without inline credentials
func SecurityWarning(toolName string) string {
	return fmt.Sprintf("The security parameters for the external tool \"%s\" need to be set in Course Settings.", toolName)
}

func (r *conversion) convertExternalTools() error {
	for _, res := range r.manifest.ResourceOrder {
		if res.Type != parser.ResourceExternalTool {
			continue
		}

		tool, ok := r.convertTool(res)
		if !ok {
			continue
		}
		if !tool.HasSecurityParameters() {
			r.doc.AddWarning(SecurityWarning(tool.Title))
		}
		r.doc.ExternalTools = append(r.doc.ExternalTools, tool)
		r.targets[res.Identifier] = models.Ref{Kind: models.KindExternalTool, MigrationID: tool.MigrationID}
	}
	return nil
}

func (r *conversion) convertTool(res *parser.ResourceDescriptor) (models.ExternalTool, bool) {
	descriptor := res.PrimaryFile()
	data, err := r.pkg.ReadFile(descriptor)
	if err != nil {
		r.log.Warn("external tool file unreadable", "resource", res.Identifier, "path", descriptor, "error", err)
		r.doc.AddWarning("The external tool \"" + r.titleFor(res) + "\" could not be read and was skipped.")
		return models.ExternalTool{}, false
	}

	var link xmlBasicLTILink
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&link); err != nil {
		r.log.Warn("external tool xml invalid", "resource", res.Identifier, "error", err)
		r.doc.AddWarning("The external tool \"" + r.titleFor(res) + "\" is not valid XML and was skipped.")
		return models.ExternalTool{}, false
	}

	tool := models.ExternalTool{
		MigrationID:      res.Identifier,
		Title:            strings.TrimSpace(link.Title),
		Description:      strings.TrimSpace(link.Description),
		URL:              strings.TrimSpace(link.SecureLaunchURL),
		PrivacyLevel:     "anonymous",
		CustomFields:     propertiesToMap(link.Custom),
		VendorExtensions: []models.VendorExtension{},
	}
	if tool.URL == "" {
		tool.URL = strings.TrimSpace(link.LaunchURL)
	}
	if tool.Title == "" {
		tool.Title = r.titleFor(res)
	}

	for _, ext := range link.Extensions {
		fields := propertiesToMap(ext.Properties)
		tool.VendorExtensions = append(tool.VendorExtensions, models.VendorExtension{
			Platform:     ext.Platform,
			CustomFields: fields,
		})

		if ext.Platform == canvasPlatform {
			if v := fields["domain"]; v != "" {
				tool.Domain = v
			}
			if v := fields["privacy_level"]; v != "" {
				tool.PrivacyLevel = v
			}
		}
		if v := fields["consumer_key"]; v != "" {
			tool.ConsumerKey = v
		}
		if v := fields["shared_secret"]; v != "" {
			tool.SharedSecret = v
		}
	}
	return tool, true
}

// propertiesToMap keeps names exactly as written, "Key1" and "key1" are different fields
func propertiesToMap(props []xmlProperty) map[string]string {
	out := make(map[string]string, len(props))
	for _, p := range props {
		if p.Name == "" {
			continue
		}
		out[p.Name] = strings.TrimSpace(p.Value)
	}
	return out
}
