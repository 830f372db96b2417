package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"tripsync/internal/domain"
	"tripsync/internal/itinerary"
)

// printDays writes one block per trip day followed by the unscheduled spots
func printDays(w io.Writer, snap itinerary.Snapshot) {
	fmt.Fprintf(w, "Room %s\n", snap.RoomID)
	for _, plan := range itinerary.DayTimelines(snap.Spots) {
		fmt.Fprintf(w, "\nDay %d\n", plan.Day)
		if len(plan.Entries) == 0 {
			fmt.Fprintln(w, "  (nothing planned)")
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, e := range plan.Entries {
			fmt.Fprintf(tw, "  %s-%s\t%s\t%d min\n", e.Start, e.End, e.Spot.Name, e.StayMinutes)
			if !e.IsLast {
				fmt.Fprintf(tw, "  \t  travel\t%d min\n", e.TravelMinutes)
			}
		}
		tw.Flush()
	}

	var pending []domain.Spot
	for _, sp := range snap.Spots {
		if sp.Status != domain.StatusConfirmed {
			pending = append(pending, sp)
		}
	}
	if len(pending) > 0 {
		fmt.Fprintln(w, "\nCandidates")
		printSpots(w, pending, snap.Votes)
	}
}

// printSpots lists spots with the likes counted from the room's votes
func printSpots(w io.Writer, spots []domain.Spot, votes []domain.Vote) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, sp := range spots {
		day := "-"
		if sp.Status == domain.StatusConfirmed {
			day = fmt.Sprintf("day %d", sp.Day)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%d likes\t%s\n", sp.ID, sp.Name, sp.Status, day, domain.CountLikes(votes, sp.ID), sp.AddedBy)
	}
	tw.Flush()
}
